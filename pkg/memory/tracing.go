package memory

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const memoryTracerName = "mnemo.memory"

const (
	spanRemember    = "memory.remember"
	spanRetrieve    = "memory.retrieve"
	spanConsolidate = "memory.consolidate"
	spanEvolve      = "memory.evolve"
)

func memoryTracer() trace.Tracer {
	return otel.Tracer(memoryTracerName)
}
