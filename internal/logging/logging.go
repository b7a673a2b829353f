// Package logging provides the one zap logger construction point used
// across the VDO core. Components take a *zap.SugaredLogger at
// construction time rather than reaching for a package-level global,
// mirroring how the teacher threads erigon-lib/log through its
// constructors instead of calling a singleton.
package logging

import "go.uber.org/zap"

// New builds a production zap logger named after the owning component,
// e.g. logging.New("block-map", zap.String("zone", "logical-zone-0")).
func New(component string, fields ...zap.Field) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Named(component).With(fields...).Sugar()
}

// NewNop returns a logger that discards everything, for use in tests that
// don't want log noise.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
