package telemetry

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/runsight/server/pkg/domain/stream"
)

// ParseStreamFIT decodes a FIT activity file into raw sample rows. Only
// record messages matter here; laps and sessions carry summaries the
// analysis derives itself.
func ParseStreamFIT(data []byte) ([]stream.RawSample, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT data")
	}

	fitDec := decoder.New(bytes.NewReader(data))

	var samples []stream.RawSample
	var startTime time.Time

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for _, msg := range fitData.Messages {
			if msg.Num != typedef.MesgNumRecord {
				continue
			}
			rec := mesgdef.NewRecord(&msg)

			ts := rec.Timestamp
			if ts.IsZero() {
				continue
			}
			if startTime.IsZero() {
				startTime = ts.UTC()
			}

			sample := stream.RawSample{
				TimeS: ts.UTC().Sub(startTime).Seconds(),
			}

			// 0xFF / 0xFFFF / 0xFFFFFFFF mark invalid FIT fields
			if rec.HeartRate != 0xFF {
				sample.HR = stream.Float64(float64(rec.HeartRate))
			}

			// Speed is mm/s; pace wants s/km. Standing samples carry no
			// pace rather than an infinite one.
			if rec.Speed != 0xFFFF && rec.Speed > 0 {
				sample.PaceSKm = stream.Float64(1_000_000 / float64(rec.Speed))
			}

			// Altitude scale is 5 * (metres + 500)
			if rec.Altitude != 0xFFFF {
				sample.AltitudeM = stream.Float64((float64(rec.Altitude) / 5) - 500)
			}

			// FIT running cadence counts per-leg strides; double for steps
			// per minute
			if rec.Cadence != 0xFF {
				sample.CadenceSPM = stream.Float64(float64(rec.Cadence) * 2)
			}

			if rec.Power != 0xFFFF {
				sample.PowerW = stream.Float64(float64(rec.Power))
			}

			// Distance scale is centimetres
			if rec.Distance != 0xFFFFFFFF {
				sample.DistanceM = stream.Float64(float64(rec.Distance) / 100)
			}

			samples = append(samples, sample)
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no record messages found in FIT file")
	}

	return samples, nil
}
