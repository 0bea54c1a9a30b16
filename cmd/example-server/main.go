// Command example-server exposes the execution pipeline over HTTP.
//
// POST /v1/execute with a JSON body {"module": "<base64 wasm>", "input": "..."}
// and an X-API-Key header identifying the (already provisioned) tenant.
// Responses carry the module's output on success, a failure kind otherwise,
// and a Retry-After header on 429.
//
// Configuration is environment-driven:
//
//	LISTEN_ADDR       address to serve on (default ":8080")
//	REDIS_ADDR        optional; enables distributed admission when set
//	MAX_MODULE_SIZE   global module size cap in bytes (default 10 MiB)
//	MEMORY_LIMIT      global memory ceiling in bytes (default 128 MiB)
//	TIMEOUT_SECONDS   global execution ceiling (default 30)
//	MAX_CONCURRENT    simultaneous sandbox runs (default 16)
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wasmgate/wasmgate/pkg/admission"
	"github.com/wasmgate/wasmgate/pkg/pipeline"
	"github.com/wasmgate/wasmgate/pkg/policy"
	"github.com/wasmgate/wasmgate/pkg/sandbox"
)

type executeRequest struct {
	Module string `json:"module"`
	Input  string `json:"input"`
}

type executeResponse struct {
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	RetryAfter int64  `json:"retry_after_seconds,omitempty"`
}

func envUint(name string, def uint64) uint64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	admissionOpts := []admission.Option{admission.WithLogger(logger)}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		admissionOpts = append(admissionOpts,
			admission.WithRedis(client),
			admission.WithPrefix("wasmgate:"),
			admission.WithStoreTimeout(250*time.Millisecond),
		)
		logger.Info("distributed admission enabled", "redis", redisAddr)
	} else {
		logger.Info("running with in-process admission only")
	}

	ctrl := admission.NewController(admissionOpts...)
	ctrl.StartJanitor(context.Background(), time.Hour)

	runner := sandbox.NewRunner(sandbox.Config{
		MaxModuleSize:  envUint("MAX_MODULE_SIZE", 10<<20),
		MemoryLimit:    envUint("MEMORY_LIMIT", 128<<20),
		TimeoutSeconds: envUint("TIMEOUT_SECONDS", 30),
		Logger:         logger,
	})

	p := pipeline.New(ctrl, runner,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(logRecorder{logger}),
		pipeline.WithMaxConcurrent(int(envUint("MAX_CONCURRENT", 16))),
	)

	// Demo tenants. A real deployment resolves tiers from its billing
	// system behind the same Directory interface.
	tiers := policy.NewStaticDirectory(map[string]policy.Tier{
		"demo-free":       policy.Free,
		"demo-pro":        policy.Pro,
		"demo-enterprise": policy.Enterprise,
	}).WithDefault(policy.Free)

	http.HandleFunc("POST /v1/execute", func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-API-Key")
		if tenant == "" {
			writeJSON(w, http.StatusUnauthorized, executeResponse{Error: "missing X-API-Key"})
			return
		}
		tier, err := tiers.Lookup(r.Context(), tenant)
		if err != nil {
			writeJSON(w, http.StatusForbidden, executeResponse{Error: "unknown tenant"})
			return
		}

		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, executeResponse{Error: "invalid JSON body"})
			return
		}
		module, err := base64.StdEncoding.DecodeString(req.Module)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, executeResponse{Error: "module is not valid base64"})
			return
		}

		res := p.Execute(r.Context(), tenant, tier, module, req.Input)
		if res.Denied {
			retry := int64(res.Decision.RetryAfter.Seconds())
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			writeJSON(w, http.StatusTooManyRequests, executeResponse{
				Error:      "rate limit exceeded",
				RetryAfter: retry,
			})
			return
		}
		if !res.Outcome.Succeeded() {
			writeJSON(w, statusFor(res.Outcome.Failure), executeResponse{
				Error:     res.Outcome.Failure.Detail,
				ErrorKind: string(res.Outcome.Failure.Kind),
			})
			return
		}
		writeJSON(w, http.StatusOK, executeResponse{Output: res.Outcome.Output})
	})

	logger.Info("server listening", "addr", listenAddr)
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func statusFor(f *sandbox.Failure) int {
	switch f.Kind.Class() {
	case "validation":
		return http.StatusBadRequest
	case "resource":
		return http.StatusRequestEntityTooLarge
	case "runtime":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body executeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// logRecorder is a stand-in usage sink that writes records to the log.
type logRecorder struct {
	logger *slog.Logger
}

func (l logRecorder) Record(rec pipeline.Record) {
	l.logger.Info("usage",
		"id", rec.ID,
		"tenant", rec.TenantID,
		"kind", rec.Kind,
		"module_bytes", rec.ModuleSize,
		"duration", rec.Duration,
	)
}
