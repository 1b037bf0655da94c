package api

import (
	"net/http"

	"github.com/safar/qooldab/internal/settlement"
)

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if err := s.decodeBody(w, r, &body); err != nil {
		respondError(w, okEnvelope, err)
		return
	}

	req, err := body.toRequest(userID(r))
	if err != nil {
		respondError(w, okEnvelope, err)
		return
	}

	receipt, err := s.settler.PlaceOrder(r.Context(), req)
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Order placed successfully",
		"order":   receipt.Order,
		"credits": receipt.Credits,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultOrdersLimit, maxOrdersLimit)
	if err != nil {
		respondError(w, okEnvelope, err)
		return
	}

	page, err := s.reader.ListOrders(r.Context(), userID(r), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"orders":     page.Items,
		"nextCursor": page.NextCursor,
		"hasMore":    page.HasMore,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, okEnvelope, err)
		return
	}

	order, err := s.reader.GetOrder(r.Context(), id, userID(r))
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "order": order})
}

func (s *Server) handleRedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var body redeemCouponBody
	if err := s.decodeBody(w, r, &body); err != nil {
		respondError(w, successEnvelope, err)
		return
	}

	result, err := s.settler.RedeemCoupon(r.Context(), settlement.RedeemCouponRequest{
		UserID: userID(r),
		Code:   body.Code,
	})
	if err != nil {
		s.fail(w, r, successEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Coupon redeemed! " + result.CreditAmount.StringFixed(2) + " credits added.",
		"data":    result,
	})
}
