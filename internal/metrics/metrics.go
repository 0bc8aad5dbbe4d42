package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tictactoe"

const (
	CommandMove    = "move"
	CommandUndo    = "undo"
	CommandRestart = "restart"
)

// Metrics counts what the players did and how games ended.
type Metrics struct {
	Commands *prometheus.CounterVec
	NoOps    *prometheus.CounterVec
	Finished *prometheus.CounterVec
	Sessions prometheus.Gauge
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_applied_total",
			Help:      "Commands that changed the game state.",
		}, []string{"command"}),
		NoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_noop_total",
			Help:      "Commands ignored because a precondition did not hold.",
		}, []string{"command", "reason"}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached a terminal state.",
		}, []string{"result"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open presentation connections.",
		}),
	}

	registerer.MustRegister(m.Commands, m.NoOps, m.Finished, m.Sessions)

	return m
}

func (that *Metrics) Applied(command string) {
	that.Commands.WithLabelValues(command).Inc()
}

func (that *Metrics) NoOp(command, reason string) {
	that.NoOps.WithLabelValues(command, reason).Inc()
}

// GameFinished - result is "X", "O" or "draw".
func (that *Metrics) GameFinished(result string) {
	that.Finished.WithLabelValues(result).Inc()
}
