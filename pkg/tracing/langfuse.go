package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// langfuseEnv holds the Langfuse credentials; all three must be set.
type langfuseEnv struct {
	Host      string
	PublicKey string
	SecretKey string
}

func langfuseFromEnv() (langfuseEnv, bool) {
	env := langfuseEnv{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	return env, env.Host != "" && env.PublicKey != "" && env.SecretKey != ""
}

// InitLangfuse registers a global eino callback handler that ships the
// labeler and explain agent LLM calls to Langfuse. It is a no-op unless
// LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are all set.
// The returned flush must run before the process exits.
func InitLangfuse() (flush func()) {
	env, ok := langfuseFromEnv()
	if !ok {
		return func() {}
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      env.Host,
		PublicKey: env.PublicKey,
		SecretKey: env.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	slog.Info("langfuse tracing enabled", "host", env.Host)

	return flusher
}
