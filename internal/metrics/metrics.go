package metrics

import (
	"log"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/config"
)

func Setup(cfg config.Metrics) {
	if cfg.URL == "" {
		return
	}

	err := metrics.InitPush(cfg.URL, time.Duration(cfg.IntervalMs)*time.Millisecond, cfg.CommonLabels, true)
	if err != nil {
		log.Printf("Error initializing metrics push: %v", err)
	}
}
