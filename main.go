package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/lmittmann/tint"

	"github.com/rachaio/racha/authflow"
	"github.com/rachaio/racha/debt"
	"github.com/rachaio/racha/eventlogger"
	"github.com/rachaio/racha/gateway"
	"github.com/rachaio/racha/middleware"
	"github.com/rachaio/racha/money"
	"github.com/rachaio/racha/session"
	"github.com/rachaio/racha/split"
	"github.com/rachaio/racha/user"
)

func main() {
	godotenv.Load()
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, nil)))

	dsn := envOr("DATABASE_URL", "host=localhost port=5432 user=postgres password=postgres dbname=racha sslmode=disable")
	port := envOr("PORT", "5000")
	vaultAddress := envOr("VAULT_ADDRESS", "vault")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	err = db.Ping()
	if err != nil {
		printErrorAndExit("pinging database", err)
	}

	evtlogger := eventlogger.NewSqlEventLogger(db)
	worker := eventlogger.NewWorker(evtlogger, 100)
	worker.Start()
	defer worker.Shutdown()

	userRepo := user.NewRepository(db)
	sessionRepo := session.NewRepository(db)
	debtStore := debt.NewRepository(db)

	ledger := debt.NewLedger(clockwork.NewRealClock())
	persisted, err := debtStore.LoadAll(context.Background())
	if err != nil {
		printErrorAndExit("loading debts", err)
	}
	ledger.Restore(persisted)
	slog.Info("debt ledger restored", "records", len(persisted))

	tokens := gateway.NewMemory()

	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(middleware.AuthMiddleware(sessionRepo))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		evt := eventlogger.NewEvent("health_request",
			eventlogger.WithData(map[string]string{
				"message":     "ok",
				"http_status": strconv.Itoa(http.StatusOK),
			}),
		)
		worker.Log(evt)
		w.Write([]byte("ok"))
	})

	router.Post("/user/register", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Email         string `json:"email"`
			Password      string `json:"password"`
			WalletAddress string `json:"wallet_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		registered, err := userRepo.Register(ctx, req.Email, req.Password, req.WalletAddress)
		if err != nil {
			switch err {
			case user.ErrEmailExists:
				http.Error(w, err.Error(), http.StatusConflict)
			case user.ErrBlankPassword, user.ErrInvalidEmail, user.ErrBlankWallet:
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				slog.Error("failed to register user", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		sess, err := sessionRepo.Create(ctx, registered.ID)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		worker.Log(eventlogger.NewEvent("user.registered",
			eventlogger.WithData(map[string]string{
				"user_id":        registered.ID.String(),
				"email":          registered.Email,
				"wallet_address": registered.WalletAddress,
			}),
		))

		writeJSON(w, http.StatusCreated, map[string]any{
			"user":  registered,
			"token": sess.Token,
		})
	})

	router.Post("/user/login", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		userdb, err := userRepo.GetByEmail(ctx, req.Email)
		if err != nil {
			slog.Error("failed to fetch user", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if userdb == nil {
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		if err := userRepo.VerifyPassword(userdb.PasswordHash, req.Password); err != nil {
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		sess, err := sessionRepo.Create(ctx, userdb.ID)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		worker.Log(eventlogger.NewEvent("user.logged_in",
			eventlogger.WithData(map[string]string{
				"user_id":    userdb.ID.String(),
				"session_id": sess.ID.String(),
			}),
		))

		writeJSON(w, http.StatusOK, map[string]any{"token": sess.Token})
	})

	// Protected routes - require authentication
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())

		r.Post("/splits", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Total        string   `json:"total"`
				Scale        uint8    `json:"scale"`
				Mode         string   `json:"mode"`
				Participants []string `json:"participants"`
				BasisPoints  []int64  `json:"basis_points"`
				Amounts      []string `json:"amounts"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			total, err := money.Parse(req.Total, req.Scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			amounts := make([]money.Money, 0, len(req.Amounts))
			for _, raw := range req.Amounts {
				amount, err := money.Parse(raw, req.Scale)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				amounts = append(amounts, amount)
			}

			shares, err := split.Compute(split.Request{
				Total:        total,
				Mode:         split.Mode(req.Mode),
				Participants: req.Participants,
				BasisPoints:  req.BasisPoints,
				Amounts:      amounts,
			})
			if err != nil {
				http.Error(w, err.Error(), statusForSplitError(err))
				return
			}

			worker.Log(eventlogger.NewEvent("split.computed",
				eventlogger.WithData(map[string]string{
					"mode":         req.Mode,
					"total":        total.String(),
					"participants": strconv.Itoa(len(req.Participants)),
				}),
			))

			out := make([]map[string]string, 0, len(shares))
			for _, s := range shares {
				out = append(out, map[string]string{
					"participant": s.Participant,
					"amount":      s.Amount.String(),
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{"shares": out})
		})

		r.Post("/debts", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Creditor string `json:"creditor"`
				Debtor   string `json:"debtor"`
				Amount   string `json:"amount"`
				Scale    uint8  `json:"scale"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			amount, err := money.Parse(req.Amount, req.Scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			id, err := ledger.Record(req.Creditor, req.Debtor, amount)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			recorded, err := ledger.Get(id)
			if err != nil {
				slog.Error("failed to read back debt", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if err := debtStore.Insert(r.Context(), recorded); err != nil {
				slog.Error("failed to persist debt", "error", err, "debt_id", id)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			worker.Log(eventlogger.NewEvent("debt.recorded",
				eventlogger.WithData(debt.RecordedEvent{
					DebtID:    id.String(),
					Creditor:  req.Creditor,
					Debtor:    req.Debtor,
					Amount:    amount.String(),
					Scale:     req.Scale,
					CreatedAt: recorded.CreatedAt,
				}),
			))

			writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
		})

		r.Post("/debts/{id}/settle", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				http.Error(w, "invalid debt id", http.StatusBadRequest)
				return
			}

			if err := ledger.Settle(id); err != nil {
				switch {
				case errors.Is(err, debt.ErrNotFound):
					http.Error(w, err.Error(), http.StatusNotFound)
				case errors.Is(err, debt.ErrAlreadySettled):
					http.Error(w, err.Error(), http.StatusConflict)
				default:
					http.Error(w, err.Error(), http.StatusBadRequest)
				}
				return
			}

			settled, err := ledger.Get(id)
			if err == nil {
				if err := debtStore.MarkSettled(r.Context(), id, settled.SettledAt); err != nil {
					slog.Error("failed to persist settlement", "error", err, "debt_id", id)
				}
			}

			userID, _ := middleware.GetUserID(r.Context())
			worker.Log(eventlogger.NewEvent("debt.settled",
				eventlogger.WithData(debt.SettledEvent{
					DebtID:    id.String(),
					SettledBy: userID.String(),
					SettledAt: settled.SettledAt,
				}),
			))

			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/debts/settle-net", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ParticipantA string `json:"participant_a"`
				ParticipantB string `json:"participant_b"`
				Scale        uint8  `json:"scale"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			ids, residual, err := ledger.SettleNet(req.ParticipantA, req.ParticipantB, req.Scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			idStrings := make([]string, 0, len(ids))
			for _, id := range ids {
				idStrings = append(idStrings, id.String())
				settled, err := ledger.Get(id)
				if err != nil {
					continue
				}
				if err := debtStore.MarkSettled(r.Context(), id, settled.SettledAt); err != nil {
					slog.Error("failed to persist settlement", "error", err, "debt_id", id)
				}
			}

			worker.Log(eventlogger.NewEvent("debt.net_settled",
				eventlogger.WithData(debt.NetSettledEvent{
					ParticipantA: req.ParticipantA,
					ParticipantB: req.ParticipantB,
					Scale:        req.Scale,
					DebtIDs:      idStrings,
					Residual:     residual.String(),
				}),
			))

			writeJSON(w, http.StatusOK, map[string]any{
				"settled_ids": idStrings,
				"residual":    residual.String(),
			})
		})

		r.Get("/debts/net", func(w http.ResponseWriter, r *http.Request) {
			a := r.URL.Query().Get("a")
			b := r.URL.Query().Get("b")
			scale, err := parseScale(r.URL.Query().Get("scale"))
			if err != nil || a == "" || b == "" {
				http.Error(w, "a, b and scale are required", http.StatusBadRequest)
				return
			}

			net, err := ledger.NetBalance(a, b, scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"participant_a": a,
				"participant_b": b,
				"scale":         scale,
				// Positive means b owes a.
				"net": net.String(),
			})
		})

		r.Get("/debts/summary", func(w http.ResponseWriter, r *http.Request) {
			participant := r.URL.Query().Get("participant")
			if participant == "" {
				http.Error(w, "participant is required", http.StatusBadRequest)
				return
			}

			rawScale := r.URL.Query().Get("scale")
			if rawScale == "" {
				summaries, err := ledger.SummarizeAll(participant)
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				out := make(map[string]any, len(summaries))
				for scale, s := range summaries {
					out[strconv.Itoa(int(scale))] = summaryJSON(s)
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"participant": participant,
					"currencies":  out,
				})
				return
			}

			scale, err := parseScale(rawScale)
			if err != nil {
				http.Error(w, "invalid scale", http.StatusBadRequest)
				return
			}
			summary, err := ledger.Summarize(participant, scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, summaryJSON(summary))
		})

		r.Post("/deposits", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var req struct {
				Amount string `json:"amount"`
				Scale  uint8  `json:"scale"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			amount, err := money.Parse(req.Amount, req.Scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !amount.IsPositive() {
				http.Error(w, "amount must be positive", http.StatusBadRequest)
				return
			}

			userID, _ := middleware.GetUserID(ctx)
			depositor, err := userRepo.GetByID(ctx, userID)
			if err != nil || depositor == nil {
				slog.Error("failed to fetch user", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			owner := depositor.WalletAddress

			seq := authflow.New(vaultAddress, amount, authflow.Capabilities{
				CheckAllowance: func(ctx context.Context, spender string) (money.Money, error) {
					return tokens.Allowance(ctx, owner, spender, amount.Scale())
				},
				Approve: func(ctx context.Context, spender string, amount money.Money) error {
					return tokens.Approve(ctx, owner, spender, amount)
				},
				Perform: func(ctx context.Context) error {
					return tokens.Transfer(ctx, owner, vaultAddress, vaultAddress, amount)
				},
			})

			state, err := seq.Run(ctx)
			if err != nil {
				writeJSON(w, http.StatusConflict, map[string]any{
					"state":   state,
					"history": seq.History(),
					"error":   err.Error(),
				})
				return
			}

			worker.Log(eventlogger.NewEvent("deposit.completed",
				eventlogger.WithData(map[string]string{
					"user_id": userID.String(),
					"wallet":  owner,
					"amount":  amount.String(),
					"scale":   strconv.Itoa(int(req.Scale)),
				}),
			))

			writeJSON(w, http.StatusOK, map[string]any{
				"state":   state,
				"history": seq.History(),
			})
		})

		// Dev convenience for the in-memory gateway: credit the caller's
		// wallet so deposits have something to move.
		r.Post("/faucet", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var req struct {
				Amount string `json:"amount"`
				Scale  uint8  `json:"scale"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			amount, err := money.Parse(req.Amount, req.Scale)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			userID, _ := middleware.GetUserID(ctx)
			claimer, err := userRepo.GetByID(ctx, userID)
			if err != nil || claimer == nil {
				slog.Error("failed to fetch user", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if err := tokens.Mint(claimer.WalletAddress, amount); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			writeJSON(w, http.StatusOK, map[string]string{
				"wallet":  claimer.WalletAddress,
				"balance": tokens.Balance(claimer.WalletAddress, req.Scale).String(),
			})
		})

		r.Post("/user/logout", func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				sessionRepo.Delete(r.Context(), token)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	slog.Info("server starting", "port", port)
	http.ListenAndServe(":"+port, router)
}

func summaryJSON(s debt.Summary) map[string]string {
	return map[string]string{
		"owed":  s.Owed.String(),
		"owing": s.Owing.String(),
		"net":   s.Net.String(),
	}
}

func statusForSplitError(err error) int {
	switch {
	case errors.Is(err, split.ErrInvalidShareSum):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func parseScale(raw string) (uint8, error) {
	scale, err := strconv.ParseUint(raw, 10, 8)
	return uint8(scale), err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
