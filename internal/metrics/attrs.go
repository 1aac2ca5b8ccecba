package metrics

import "go.opentelemetry.io/otel/attribute"

func kindAttr(kind string) attribute.KeyValue     { return attribute.String("kind", kind) }
func opAttr(op string) attribute.KeyValue         { return attribute.String("op", op) }
func directionAttr(dir string) attribute.KeyValue { return attribute.String("direction", dir) }
