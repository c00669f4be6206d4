package sensors

import (
	"strconv"
	"strings"

	"github.com/msto63/hive/pkg/core/apperr"
)

// ErrUnsupportedSentence is returned for valid NMEA sentences other than GGA
var ErrUnsupportedSentence = apperr.New("unsupported NMEA sentence").WithCode(apperr.CodeInvalidInput)

// Fix is the position report of one GGA sentence
type Fix struct {
	Time       string
	Latitude   float64
	Longitude  float64
	Quality    uint8
	Satellites int
	Altitude   float64
}

// Valid reports whether the receiver has a position
func (f Fix) Valid() bool {
	return f.Quality > 0
}

// checksum XORs the bytes between '$' and '*'
func checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// splitSentence verifies framing and checksum and returns the fields
func splitSentence(sentence string) ([]string, error) {
	sentence = strings.TrimSpace(sentence)
	if !strings.HasPrefix(sentence, "$") {
		return nil, apperr.Newf("NMEA sentence %q does not start with $", sentence).WithCode(apperr.CodeInvalidInput)
	}

	body := sentence[1:]
	if star := strings.LastIndexByte(body, '*'); star >= 0 {
		want, err := strconv.ParseUint(body[star+1:], 16, 8)
		if err != nil {
			return nil, apperr.Newf("NMEA checksum %q malformed", body[star+1:]).WithCode(apperr.CodeInvalidInput)
		}
		body = body[:star]
		if got := checksum(body); got != byte(want) {
			return nil, apperr.Newf("NMEA checksum mismatch: got %02X, want %02X", got, want).WithCode(apperr.CodeInvalidInput)
		}
	}

	return strings.Split(body, ","), nil
}

// ParseGGA parses a $GPGGA or $GNGGA sentence. Sentences without a fix
// parse successfully with Quality 0 and zero coordinates.
func ParseGGA(sentence string) (Fix, error) {
	fields, err := splitSentence(sentence)
	if err != nil {
		return Fix{}, err
	}

	if len(fields[0]) != 5 || fields[0][2:] != "GGA" {
		return Fix{}, ErrUnsupportedSentence
	}
	if len(fields) < 10 {
		return Fix{}, apperr.Newf("GGA sentence has %d fields, want at least 10", len(fields)).WithCode(apperr.CodeInvalidInput)
	}

	fix := Fix{Time: fields[1]}

	if q, err := strconv.ParseUint(fields[6], 10, 8); err == nil {
		fix.Quality = uint8(q)
	}
	if n, err := strconv.Atoi(fields[7]); err == nil {
		fix.Satellites = n
	}
	if !fix.Valid() {
		return fix, nil
	}

	if fix.Latitude, err = coordinate(fields[2], fields[3], "N", "S"); err != nil {
		return Fix{}, err
	}
	if fix.Longitude, err = coordinate(fields[4], fields[5], "E", "W"); err != nil {
		return Fix{}, err
	}
	if fields[9] != "" {
		alt, err := strconv.ParseFloat(fields[9], 64)
		if err != nil {
			return Fix{}, apperr.Newf("GGA altitude %q malformed", fields[9]).WithCode(apperr.CodeInvalidInput)
		}
		fix.Altitude = alt
	}
	return fix, nil
}

// coordinate converts NMEA (d)ddmm.mmmm plus hemisphere into signed
// decimal degrees
func coordinate(value, hemisphere, positive, negative string) (float64, error) {
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, apperr.Newf("NMEA coordinate %q malformed", value).WithCode(apperr.CodeInvalidInput)
	}

	degrees := float64(int(raw / 100))
	minutes := raw - degrees*100
	decimal := degrees + minutes/60

	switch hemisphere {
	case positive:
		return decimal, nil
	case negative:
		return -decimal, nil
	default:
		return 0, apperr.Newf("NMEA hemisphere %q invalid", hemisphere).WithCode(apperr.CodeInvalidInput)
	}
}
