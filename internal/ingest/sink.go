package ingest

import (
	"context"
	"strconv"

	"github.com/desmo/fleet/log2"
	"github.com/desmo/fleet/tele"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/juju/errors"
)

// Sink stores validated frames. Write error means frame will be retried.
type Sink interface {
	Write(ctx context.Context, f *tele.Frame) error
	Close() error
}

type LogSink struct{ Log *log2.Log }

func (s LogSink) Write(ctx context.Context, f *tele.Frame) error {
	if f.Flags != 0 {
		s.Log.Infof("vehicle alert id=%d flags=%s jerk=%d version=%d", f.VehicleID, f.Flags.String(), f.Jerk, f.Version)
	} else {
		s.Log.Debugf("frame %s", f.String())
	}
	return nil
}
func (LogSink) Close() error { return nil }

const influxMeasurement = "vehicle_status"

type InfluxSink struct {
	client influxdb2.Client
	w      api.WriteAPIBlocking
}

func NewInfluxSink(url, token, org, bucket string, opts *influxdb2.Options) *InfluxSink {
	if opts == nil {
		opts = influxdb2.DefaultOptions()
	}
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &InfluxSink{
		client: client,
		w:      client.WriteAPIBlocking(org, bucket),
	}
}

func FramePoint(f *tele.Frame) *write.Point {
	return influxdb2.NewPointWithMeasurement(influxMeasurement).
		AddTag("vehicle_id", strconv.Itoa(int(f.VehicleID))).
		AddField("speed", f.Speed).
		AddField("rpm", f.RPM).
		AddField("jerk", f.Jerk).
		AddField("temp", f.Temp).
		AddField("battery", f.Battery).
		AddField("gear", f.Gear).
		AddField("flags", uint8(f.Flags)).
		SetTime(f.Time())
}

func (s *InfluxSink) Write(ctx context.Context, f *tele.Frame) error {
	if err := s.w.WritePoint(ctx, FramePoint(f)); err != nil {
		return errors.Annotatef(err, "influx write vehicle=%d seq=%d", f.VehicleID, f.Seq)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
