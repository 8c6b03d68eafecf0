// Package handler exposes the catalog, cart and order operations over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/ezyeats/internal/domain/cart"
	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
	"github.com/xenking/ezyeats/internal/domain/shop"
)

// Handler serves the customer API. Every route requires an authenticated
// customer.
type Handler struct {
	shops  *shop.Service
	carts  *cart.Registry
	orders *order.Service
	feed   *feed.Service

	// streams is cancelled by CloseStreams.
	streams      context.Context
	closeStreams context.CancelFunc
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	shops *shop.Service,
	carts *cart.Registry,
	orders *order.Service,
	feed *feed.Service,
) *Handler {
	streams, closeStreams := context.WithCancel(context.Background())
	return &Handler{
		shops:        shops,
		carts:        carts,
		orders:       orders,
		feed:         feed,
		streams:      streams,
		closeStreams: closeStreams,
	}
}

// CloseStreams ends every open order stream. New streams opened afterwards
// end immediately. Suitable for http.Server.RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeStreams()
}

// Routes returns the API router. auth runs before every route.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth)

	r.Route("/shops", func(r chi.Router) {
		r.Get("/", h.listShops)
		r.Get("/{shopID}", h.getShop)
		r.Get("/{shopID}/menu", h.getMenu)
	})
	r.Post("/scan", h.scan)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addCartItem)
		r.Delete("/items/{itemID}", h.removeCartItem)
		r.Get("/items/{itemID}/quantity", h.cartItemQuantity)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Get("/stream", h.streamOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})

	return r
}
