package routes

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"go-lunos/bridge"
	"go-lunos/logger"
	"go-lunos/lunos"
)

// State returns a snapshot of every configured fan: last known
// commanded speed, ventilation mode and the airflow figures for it.
func State(b *bridge.Bridge) func(http.ResponseWriter, *http.Request, httprouter.Params) {
	log := logger.Get(logger.InfoLevel)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		fans := b.Fans()
		statuses := make([]lunos.Status, 0, len(fans))
		for _, fan := range fans {
			statuses = append(statuses, fan.Snapshot())
		}

		marshaled, err := json.Marshal(statuses)
		if err != nil {
			log.Errorw("marshaling state response", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(marshaled)
	}
}
