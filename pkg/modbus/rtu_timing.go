package modbus

import "time"

// rtuTiming holds the inter-character (t1.5) and inter-frame (t3.5)
// silence thresholds derived from a serial line's baud rate.
type rtuTiming struct {
	t15 time.Duration
	t35 time.Duration
}

// newRTUTiming computes t1.5/t3.5 for the given baud rate. Above
// 19200 baud the standard fixes the thresholds at 750µs/1.75ms
// regardless of rate; below that they scale with the time to
// transmit one 11-bit character (start + 8 data + parity + stop).
func newRTUTiming(baud int) rtuTiming {
	if baud <= 0 {
		baud = 9600
	}
	if baud > 19200 {
		return rtuTiming{
			t15: 750 * time.Microsecond,
			t35: 1750 * time.Microsecond,
		}
	}
	charTime := time.Duration(float64(11) / float64(baud) * float64(time.Second))
	return rtuTiming{
		t15: time.Duration(1.5 * float64(charTime)),
		t35: time.Duration(3.5 * float64(charTime)),
	}
}
