package telemetry

import "go.opentelemetry.io/otel/attribute"

// labelsToAttrs pairs up a flat key/value label slice into OTEL attributes.
// A trailing unpaired label is dropped.
func labelsToAttrs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}
