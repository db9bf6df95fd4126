package jitterbuf

import "github.com/samber/lo"

// adjuster turns history statistics into a target delay and moves the
// current delay towards it in bounded steps.
type adjuster struct {
	conf *Config
}

// target computes the desired playout delay. Above the loss threshold the
// margin grows with the loss percentage.
func (a adjuster) target(jitter, minDelay, losspct int64) int64 {
	t := minDelay + jitter + a.conf.TargetExtra
	if losspct > a.conf.LossThreshold {
		t += (losspct - a.conf.LossThreshold) * a.conf.TargetExtra / 50000
	}
	if limit := a.conf.MaxJitterbuf; limit > 0 {
		t = lo.Min([]int64{t, minDelay + limit, limit})
	}
	return t
}

// grow reports how much to raise current this tick, zero if nothing.
func (a adjuster) grow(current, target, now, last, step int64, emergency bool) int64 {
	diff := target - current
	if diff <= 0 || step <= 0 {
		return 0
	}
	if !emergency && now-last < a.conf.AdjustInterval {
		return 0
	}
	return lo.Min([]int64{step, diff})
}

// shrink reports how much to lower current this tick, zero if nothing.
// Current only shrinks once it exceeds target by more than TargetExtra.
func (a adjuster) shrink(current, target, now, last, step, interval int64, emergency bool) int64 {
	excess := current - target
	if excess <= a.conf.TargetExtra || step <= 0 {
		return 0
	}
	if !emergency && now-last < interval {
		return 0
	}
	return lo.Min([]int64{step, excess})
}
