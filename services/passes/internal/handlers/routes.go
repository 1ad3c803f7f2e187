package handlers

import (
	"net/http"

	"github.com/diagnosis/gatepass/pkg/auth"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterOptions struct {
	JWTSecret string
	// VerifyLimit, RegisterLimit and RetrieveLimit throttle the public
	// endpoints, each with its own budget. Nil disables a limit.
	VerifyLimit   func(http.Handler) http.Handler
	RegisterLimit func(http.Handler) http.Handler
	RetrieveLimit func(http.Handler) http.Handler
	// Idempotency replays bulk issuance responses. Nil disables it.
	Idempotency func(http.Handler) http.Handler
}

func passthrough(next http.Handler) http.Handler { return next }

func orPassthrough(m func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return m
}

func Router(h *Handlers, opts RouterOptions) chi.Router {
	verifyLimit := orPassthrough(opts.VerifyLimit)
	registerLimit := orPassthrough(opts.RegisterLimit)
	retrieveLimit := orPassthrough(opts.RetrieveLimit)
	idempotency := orPassthrough(opts.Idempotency)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("passes"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	r.With(verifyLimit).Get("/verify", h.Verify)

	r.Route("/passes", func(r chi.Router) {
		r.With(registerLimit).Post("/", h.IssuePass)
		r.With(retrieveLimit).Post("/retrieve", h.Retrieve)
		r.Get("/{id}/qr.png", h.QRCode)
	})

	r.Route("/organiser/passes", func(r chi.Router) {
		r.Use(mw.RequireJWT(opts.JWTSecret, auth.RoleOrganiser, auth.RoleCSO))
		r.Post("/", h.IssueStaffPass)
		r.With(idempotency).Post("/bulk", h.BulkIssue)
	})

	r.With(mw.RequireJWT(opts.JWTSecret, auth.RoleGuard, auth.RoleCSO)).Post("/guard/scans", h.GuardScan)

	r.Route("/cso/visitors", func(r chi.Router) {
		r.Use(mw.RequireJWT(opts.JWTSecret, auth.RoleCSO))
		r.Get("/", h.ListVisitors)
		r.Patch("/{id}/status", h.UpdateVisitorStatus)
	})

	return r
}
