package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"aviator/service"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type HandlerDeps struct {
	Game service.GameService
}

// Handler serves the game over HTTP. Account ids come from the path; this
// adapter performs no authentication.
type Handler struct {
	game service.GameService
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{game: deps.Game}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toRoundResponse(h.game.CurrentRound()))
}

func (h *Handler) RecentRounds(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	rounds, err := h.game.RecentRounds(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCrashedRounds(rounds))
}

func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	if err := h.game.StartRound(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toRoundResponse(h.game.CurrentRound()))
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.game.EnsureAccount(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		ID:      account.ID,
		Kind:    account.Kind,
		Balance: account.Balance,
	})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	balance, err := h.game.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{AccountID: id, Balance: balance})
}

func (h *Handler) BalanceHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	entries, err := h.game.GetHistory(r.Context(), accountID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponses(entries))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.game.GetStats(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[PlaceBetRequest](r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var opts []service.BetOption
	if payload.AutoCashOut.Valid {
		opts = append(opts, service.WithAutoCashOut(payload.AutoCashOut.Decimal))
	}

	bet, err := h.game.PlaceBet(r.Context(), accountID(r), payload.Stake, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBetResponse(bet))
}

func (h *Handler) BetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	bets, err := h.game.GetBetHistory(r.Context(), accountID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponses(bets))
}

func (h *Handler) ActiveBet(w http.ResponseWriter, r *http.Request) {
	bet, err := h.game.ActiveBet(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bet == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponse(bet))
}

func (h *Handler) CashOut(w http.ResponseWriter, r *http.Request) {
	bet, err := h.game.RequestCashOut(r.Context(), chi.URLParam(r, "betID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponse(bet))
}

func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[SubmitDepositRequest](r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var opts []service.DepositOption
	if strings.TrimSpace(payload.Address) != "" {
		opts = append(opts, service.WithAddress(payload.Address))
	}

	deposit, err := h.game.SubmitDeposit(r.Context(), accountID(r), payload.Amount, payload.Reference, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositResponse(deposit))
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	deposits, err := h.game.ListDeposits(r.Context(), accountID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositResponses(deposits))
}

// ConfirmDeposit is the operator hook for reporting confirmations by hand
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[ConfirmDepositRequest](r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if payload.Confirmations < 0 {
		writeBadRequest(w, fmt.Errorf("confirmations cannot be negative"))
		return
	}

	reference := chi.URLParam(r, "reference")
	deposit, err := h.game.ConfirmDeposit(r.Context(), reference, payload.Confirmations)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"reference":     reference,
		"confirmations": payload.Confirmations,
		"status":        deposit.Status,
	}).Info("Deposit confirmation reported over HTTP")
	writeJSON(w, http.StatusOK, toDepositResponse(deposit))
}

func accountID(r *http.Request) string {
	return chi.URLParam(r, "accountID")
}
