// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"math"
	"time"
)

var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

type GTime struct {
	Week int
	Sec  float64
}

func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= gpsEpoch.Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

// GPS time from nanoseconds elapsed since the GPS epoch
func NewGTimeFromNanos(ns int64) *GTime {
	return &GTime{
		Week: int(ns / NANOS_IN_WEEK),
		Sec:  float64(ns%NANOS_IN_WEEK) * 1e-9,
	}
}

func (p *GTime) ToTime() time.Time {
	i := int64(math.Trunc(p.Sec))
	t := int64(3600*24*7*p.Week) + i + gpsEpoch.Unix()
	n := int64((p.Sec - float64(i)) * 1e9)
	return time.Unix(t, n) // Unix time is the elapsed seconds since 1970/1/1 00:00:00
}

// Day of year (UTC)
func (p *GTime) DayOfYear() int {
	return p.ToTime().Add(-LS * time.Second).UTC().YearDay()
}

// Return time shifted by dt seconds with the time of week kept in [0, SECONDS_IN_WEEK)
func (p GTime) Add(dt float64) GTime {
	return WrapWeek(p.Sec+dt, p.Week)
}

// Seconds from b to p
func (p *GTime) Sub(b GTime) float64 {
	return float64(p.Week-b.Week)*SECONDS_IN_WEEK + p.Sec - b.Sec
}

func (p *GTime) Less(b GTime, roundSec bool) bool {
	if p.Week == b.Week {
		if roundSec {
			return math.Round(p.Sec) < math.Round(b.Sec)
		} else {
			return p.Sec < b.Sec
		}
	} else {
		return p.Week < b.Week
	}
}

// Wrap time of week into [0, SECONDS_IN_WEEK) and adjust the week counter
func WrapWeek(tow float64, week int) GTime {
	for tow < 0 {
		tow += SECONDS_IN_WEEK
		week--
	}
	for tow >= SECONDS_IN_WEEK {
		tow -= SECONDS_IN_WEEK
		week++
	}
	return GTime{Week: week, Sec: tow}
}

// Time difference t - t0 [s] corrected for week crossover
func towDiff(t, t0 float64) float64 {
	d := t - t0
	if d > SECONDS_IN_HALF_WEEK {
		d -= SECONDS_IN_WEEK
	} else if d < -SECONDS_IN_HALF_WEEK {
		d += SECONDS_IN_WEEK
	}
	return d
}
