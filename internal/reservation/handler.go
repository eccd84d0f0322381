package reservation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"guincheuse/internal/httperr"
	appLog "guincheuse/internal/log"
)

const maxBodyBytes = 64 << 10

// Handler serves POST /api/reservation.
func Handler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := decodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
			appLog.Debug("reservation body rejected", "err", err)
			writeError(w, httperr.BadRequest(MsgBadRequest))
			return
		}

		if err := s.Submit(r.Context(), ClientIdentity(r), req); err != nil {
			he := httperr.As(err, MsgDeliveryFailed)
			if he.Status >= http.StatusInternalServerError {
				appLog.Error("reservation rejected", err, "status", he.Status)
			} else {
				appLog.Debug("reservation rejected", "status", he.Status, "reason", he.Message)
			}
			writeError(w, he)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": MsgAccepted})
	}
}

// decodeRequest reads exactly one JSON value; anything after it is an error.
func decodeRequest(r io.Reader, req *Request) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(req); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after JSON body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, he *httperr.Error) {
	writeJSON(w, he.Status, map[string]string{"error": he.Message})
}
