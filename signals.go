package cloak

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for cloak events.
var (
	SignalTypeGenerated    = capitan.NewSignal("cloak.type.generated", "Encrypted type generated for a plain type")
	SignalInstanceWrapped  = capitan.NewSignal("cloak.instance.wrapped", "Plain object wrapped in a new tracked instance")
	SignalInstanceRelinked = capitan.NewSignal("cloak.instance.relinked", "Encrypted object reattached to an interceptor")
	SignalKeyringImported  = capitan.NewSignal("cloak.keyring.imported", "Keys imported into an instance keyring")
	SignalFieldLocked      = capitan.NewSignal("cloak.field.locked", "Encrypted field read without a usable key")
	SignalFieldRejected    = capitan.NewSignal("cloak.field.rejected", "Encrypted field write rejected for lack of a key")
	SignalProcessorCreated = capitan.NewSignal("cloak.processor.created", "Processor instantiated")
	SignalReceiveComplete  = capitan.NewSignal("cloak.receive.complete", "Receive operation finished")
	SignalLoadComplete     = capitan.NewSignal("cloak.load.complete", "Load operation finished")
	SignalStoreComplete    = capitan.NewSignal("cloak.store.complete", "Store operation finished")
	SignalSendComplete     = capitan.NewSignal("cloak.send.complete", "Send operation finished")
)

// Keys for typed event data.
var (
	KeyTypeName    = capitan.NewStringKey("type_name")
	KeyInstanceID  = capitan.NewStringKey("instance_id")
	KeyField       = capitan.NewStringKey("field")
	KeyKeyID       = capitan.NewStringKey("key_id")
	KeyAlgorithm   = capitan.NewStringKey("algorithm")
	KeyRelinkCase  = capitan.NewStringKey("relink_case")
	KeyContentType = capitan.NewStringKey("content_type")
	KeyFieldCount  = capitan.NewIntKey("field_count")
	KeyKeyCount    = capitan.NewIntKey("key_count")
	KeySize        = capitan.NewIntKey("size")
	KeyDuration    = capitan.NewDurationKey("duration")
	KeyError       = capitan.NewErrorKey("error")
)

// emitTypeGenerated emits an event when a type is committed to the registry.
func emitTypeGenerated(ctx context.Context, typeName string, fields int, duration time.Duration) {
	capitan.Emit(ctx, SignalTypeGenerated,
		KeyTypeName.Field(typeName),
		KeyFieldCount.Field(fields),
		KeyDuration.Field(duration),
	)
}

// emitInstanceWrapped emits an event when AsEncrypted builds a new instance.
func emitInstanceWrapped(ctx context.Context, typeName, instanceID string, algo Algorithm, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyInstanceID.Field(instanceID),
		KeyAlgorithm.Field(string(algo)),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalInstanceWrapped, fields...)
		return
	}
	capitan.Emit(ctx, SignalInstanceWrapped, fields...)
}

// emitInstanceRelinked emits an event when an existing encrypted object is relinked.
func emitInstanceRelinked(ctx context.Context, typeName, instanceID string, c relinkCase) {
	capitan.Emit(ctx, SignalInstanceRelinked,
		KeyTypeName.Field(typeName),
		KeyInstanceID.Field(instanceID),
		KeyRelinkCase.Field(c.String()),
	)
}

// emitKeyringImported emits an event when keys are imported into an instance keyring.
func emitKeyringImported(ctx context.Context, typeName, instanceID string, keys int, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyInstanceID.Field(instanceID),
		KeyKeyCount.Field(keys),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalKeyringImported, fields...)
		return
	}
	capitan.Emit(ctx, SignalKeyringImported, fields...)
}

// emitFieldLocked emits an event when a read returns the locked sentinel.
func emitFieldLocked(ctx context.Context, typeName, instanceID, field, keyID string) {
	capitan.Emit(ctx, SignalFieldLocked,
		KeyTypeName.Field(typeName),
		KeyInstanceID.Field(instanceID),
		KeyField.Field(field),
		KeyKeyID.Field(keyID),
	)
}

// emitFieldRejected emits an event when a write fails for lack of a key.
func emitFieldRejected(ctx context.Context, typeName, instanceID, field, keyID string, err error) {
	capitan.Error(ctx, SignalFieldRejected,
		KeyTypeName.Field(typeName),
		KeyInstanceID.Field(instanceID),
		KeyField.Field(field),
		KeyKeyID.Field(keyID),
		KeyError.Field(err),
	)
}

// emitProcessorCreated emits an event when a processor is created.
func emitProcessorCreated(ctx context.Context, contentType, typeName string) {
	capitan.Emit(ctx, SignalProcessorCreated,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
	)
}

// boundaryFields builds the event fields shared by processor boundary events.
func boundaryFields(contentType, typeName string, size int, duration time.Duration, err error) []capitan.Field {
	fields := []capitan.Field{
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
	}
	return fields
}

// emitReceiveComplete emits an event when receive finishes.
func emitReceiveComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, err error) {
	fields := boundaryFields(contentType, typeName, size, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalReceiveComplete, fields...)
		return
	}
	capitan.Emit(ctx, SignalReceiveComplete, fields...)
}

// emitLoadComplete emits an event when load finishes.
func emitLoadComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, err error) {
	fields := boundaryFields(contentType, typeName, size, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalLoadComplete, fields...)
		return
	}
	capitan.Emit(ctx, SignalLoadComplete, fields...)
}

// emitStoreComplete emits an event when store finishes.
func emitStoreComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, err error) {
	fields := boundaryFields(contentType, typeName, size, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalStoreComplete, fields...)
		return
	}
	capitan.Emit(ctx, SignalStoreComplete, fields...)
}

// emitSendComplete emits an event when send finishes.
func emitSendComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, err error) {
	fields := boundaryFields(contentType, typeName, size, duration, err)
	if err != nil {
		capitan.Error(ctx, SignalSendComplete, fields...)
		return
	}
	capitan.Emit(ctx, SignalSendComplete, fields...)
}
