package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"positionmonitor/src/model"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

type positionFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindByStatuses(ctx context.Context, statuses []model.PositionStatus) ([]model.Position, error)
	FindOpenByTrader(ctx context.Context, traderID uint) ([]model.Position, error)
}

type trailingReader interface {
	GetTrailing(ctx context.Context, positionID uint) (model.TrailingSnapshot, bool, error)
}

type notificationFinder interface {
	FindByPosition(ctx context.Context, positionID uint) ([]model.Notification, error)
}

// PositionResponse is a position plus its cached trailing levels, if any.
type PositionResponse struct {
	model.Position
	Trailing *model.TrailingSnapshot `json:"trailing_snapshot,omitempty"`
}

// GetPositionHandler serves GET /positions/{id}.
// trailing may be nil when no cache is configured.
func GetPositionHandler(repo positionFinder, trailing trailingReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}

		position, err := repo.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).WithField("position_id", id).Error("failed to load position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if position == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		resp := PositionResponse{Position: *position}
		if trailing != nil {
			snap, found, err := trailing.GetTrailing(r.Context(), id)
			if err != nil {
				logger.WithError(err).WithField("position_id", id).Warn("failed to read trailing snapshot")
			} else if found {
				resp.Trailing = &snap
			}
		}

		writeJSON(w, resp)
	}
}

// ListPositionsHandler serves GET /positions?status=OPEN,PENDING. Without a
// status filter it lists every monitored position.
func ListPositionsHandler(repo positionFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := model.MonitoredStatuses
		if raw := r.URL.Query().Get("status"); raw != "" {
			statuses = nil
			for _, s := range strings.Split(raw, ",") {
				status := model.PositionStatus(strings.ToUpper(strings.TrimSpace(s)))
				if !knownStatus(status) {
					http.Error(w, "invalid status", http.StatusBadRequest)
					return
				}
				statuses = append(statuses, status)
			}
		}

		positions, err := repo.FindByStatuses(r.Context(), statuses)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, positions)
	}
}

// TraderPositionsHandler serves GET /traders/{traderID}/positions.
func TraderPositionsHandler(repo positionFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traderID, ok := uintParam(w, r, "traderID")
		if !ok {
			return
		}

		positions, err := repo.FindOpenByTrader(r.Context(), traderID)
		if err != nil {
			logger.WithError(err).WithField("trader_id", traderID).Error("failed to list trader positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, positions)
	}
}

// PositionNotificationsHandler serves GET /positions/{id}/notifications.
func PositionNotificationsHandler(repo notificationFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}

		notifications, err := repo.FindByPosition(r.Context(), id)
		if err != nil {
			logger.WithError(err).WithField("position_id", id).Error("failed to list notifications")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, notifications)
	}
}

func knownStatus(s model.PositionStatus) bool {
	switch s {
	case model.PositionStatusPending, model.PositionStatusProcessing, model.PositionStatusAdjustProcessing,
		model.PositionStatusCloseProcessing, model.PositionStatusOpen, model.PositionStatusClosed:
		return true
	default:
		return false
	}
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
