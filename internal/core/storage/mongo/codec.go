package mongo

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func readingFilter(q storage.ReadingQuery) bson.D {
	device := bson.D{{Key: "$exists", Value: true}}
	if len(q.DeviceIDs) > 0 {
		device = append(device, bson.E{Key: "$in", Value: q.DeviceIDs})
	}
	return bson.D{
		{Key: reading.FieldDeviceID, Value: device},
		{Key: q.Field, Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}},
	}
}

// documentFilter compares the window against both numeric epoch-millisecond
// and native-date timestamps. String timestamps never match a window.
func documentFilter(q storage.DocumentQuery) bson.D {
	filter := bson.D{{Key: reading.FieldDeviceID, Value: q.DeviceID}}
	if q.From.IsZero() && q.To.IsZero() {
		return filter
	}

	numeric := bson.D{}
	native := bson.D{}
	if !q.From.IsZero() {
		numeric = append(numeric, bson.E{Key: "$gte", Value: q.From.UnixMilli()})
		native = append(native, bson.E{Key: "$gte", Value: q.From})
	}
	if !q.To.IsZero() {
		numeric = append(numeric, bson.E{Key: "$lte", Value: q.To.UnixMilli()})
		native = append(native, bson.E{Key: "$lte", Value: q.To})
	}

	return append(filter, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: reading.FieldTimestamp, Value: numeric}},
		bson.D{{Key: reading.FieldTimestamp, Value: native}},
	}})
}

func decodeReading(raw bson.Raw, field string) (reading.Reading, bool) {
	id, ok := raw.Lookup(reading.FieldDeviceID).StringValueOK()
	if !ok || id == "" {
		return reading.Reading{}, false
	}
	v, ok := rawNumber(raw.Lookup(field))
	if !ok {
		return reading.Reading{}, false
	}
	return reading.Reading{
		DeviceID:  id,
		Timestamp: rawTimestamp(raw.Lookup(reading.FieldTimestamp)),
		Value:     v,
	}, true
}

func rawTimestamp(rv bson.RawValue) timestamp.Raw {
	switch rv.Type {
	case bsontype.String:
		return timestamp.FromString(rv.StringValue())
	case bsontype.Double:
		return timestamp.FromFloat(rv.Double())
	case bsontype.Int64:
		return timestamp.FromInt64(rv.Int64())
	case bsontype.Int32:
		return timestamp.FromInt32(rv.Int32())
	case bsontype.DateTime:
		return timestamp.FromTime(time.UnixMilli(rv.DateTime()))
	case 0:
		return timestamp.Unknown("missing")
	default:
		return timestamp.Unknown(rv.Type.String())
	}
}

func rawNumber(rv bson.RawValue) (decimal.Decimal, bool) {
	switch rv.Type {
	case bsontype.Double:
		f := rv.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	case bsontype.Int32:
		return decimal.NewFromInt32(rv.Int32()), true
	case bsontype.Int64:
		return decimal.NewFromInt(rv.Int64()), true
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(rv.Decimal128().String())
		return d, err == nil
	case bsontype.String:
		d, err := decimal.NewFromString(rv.StringValue())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// plainDocument converts driver-specific values to plain Go values so the
// document serializes cleanly and its timestamp can be tagged.
func plainDocument(m bson.M) reading.Document {
	doc := make(reading.Document, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case primitive.DateTime:
			doc[k] = val.Time().UTC()
		case primitive.ObjectID:
			doc[k] = val.Hex()
		case primitive.Decimal128:
			doc[k] = val.String()
		default:
			doc[k] = v
		}
	}
	return doc
}
