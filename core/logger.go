package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProductionLogger is a structured JSON (or human-readable) logger used by
// every package in the engine. Callers tag it with a component name via
// WithComponent so log lines can be filtered, e.g.:
//
//	jq 'select(.component == "distributed/queue")'
type ProductionLogger struct {
	level     string
	debug     bool
	service   string
	component string
	format    string
	output    io.Writer
}

// NewProductionLogger builds the root logger for a process from LoggingConfig.
func NewProductionLogger(cfg LoggingConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}
	return &ProductionLogger{
		level:     strings.ToLower(cfg.Level),
		debug:     strings.ToLower(cfg.Level) == "debug",
		service:   serviceName,
		component: "engine",
		format:    cfg.Format,
		output:    output,
	}
}

// WithComponent returns a shallow copy tagged with a new component name,
// sharing the same sink and level configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	cp := *p
	cp.component = component
	return &cp
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	ts := time.Now().Format(time.RFC3339)

	if p.format != "text" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   p.service,
			"component": p.component,
			"message":   msg,
		}
		if ctx != nil {
			if tenant, ok := ctx.Value(tenantCtxKey{}).(string); ok && tenant != "" {
				entry["tenant_id"] = tenant
			}
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n", ts, level, p.service, p.component, msg, b.String())
}

// tenantCtxKey is the context key under which the tenant id travels
// through the Agent Loop so the logger can annotate every line.
type tenantCtxKey struct{}

// WithTenant attaches a tenant id to ctx for log correlation.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantFromContext retrieves the tenant id set by WithTenant, if any.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
