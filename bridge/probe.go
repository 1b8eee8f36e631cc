package bridge

import (
	"context"

	"go.uber.org/zap"

	"i4.energy/across/atbridge/at"
)

// probeCapacity keeps the first two bytes of a probe reply, enough to spot
// "OK".
const probeCapacity = len(at.OK) + 1

// Probe finds out whether device needs "\r\n" after its AT commands.
//
// It first sends a bare "AT"; an "OK" reply means no terminator is needed.
// Otherwise it sends "\r\n" on its own, completing the "AT" for devices that
// wait for a line ending; an "OK" now means the terminator is required.
// A nil device is Unconnected. Anything else is Unknown.
func (r *Relay) Probe(ctx context.Context, device Channel) Termination {
	if device == nil {
		return Unconnected
	}

	if r.probeStep(ctx, device, []byte(at.Probe), NotRequired) {
		return NotRequired
	}
	if r.probeStep(ctx, device, nil, Required) {
		return Required
	}
	return Unknown
}

func (r *Relay) probeStep(ctx context.Context, device Channel, body []byte, term Termination) bool {
	resp := NewResponse(probeCapacity, false)
	if err := r.Exchange(ctx, device, body, term, resp); err != nil {
		r.logger.Debug("Termination probe failed", zap.Stringer("termination", term), zap.Error(err))
		return false
	}
	r.logger.Debug("Termination probe reply",
		zap.Stringer("termination", term),
		zap.ByteString("reply", resp.Bytes()),
		zap.Int("raw_bytes", resp.Raw()))
	return resp.String() == at.OK
}
