package http3

import "go.uber.org/zap"

// newLogger builds the leveled, named logger every long-lived piece of a
// connection holds, one named sub-logger per role via zap's Named().
func newLogger(role Role) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().Named("h3." + role.String())
}
