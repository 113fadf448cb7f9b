package config

import (
	"github.com/xwb1989/sqlparser"
	"go.uber.org/zap"
)

// LintStatements runs the configured hook statements through a SQL parser
// and logs anything that does not parse. Vendor statement dialects drift
// from standard SQL, so this is advisory only, never fatal.
func (c *Config) LintStatements(logger *zap.Logger) {
	for table, h := range c.Hooks.Tables {
		stmts := []struct{ hook, sql string }{
			{"pre_statement", h.PreStatement},
			{"post_statement", h.PostStatement},
		}
		for _, s := range stmts {
			if s.sql == "" {
				continue
			}
			if _, err := sqlparser.Parse(s.sql); err != nil {
				logger.Warn("hook statement did not parse as SQL",
					zap.String("table", table),
					zap.String("hook", s.hook),
					zap.Error(err),
				)
			}
		}
	}
}
