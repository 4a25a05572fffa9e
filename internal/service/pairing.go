package service

import (
	"time"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
)

// PairingRules 레이팅 허용 범위와 대기 시간 기준
type PairingRules struct {
	BaseTolerance    int
	WidenedTolerance int
	// WidenAfter 두 플레이어의 평균 대기 시간이 이 값 이상이면 WidenedTolerance 적용
	WidenAfter time.Duration
	// LongWait 이보다 오래 기다린 미매칭 항목은 LongWaiters로 보고
	LongWait time.Duration
}

// DefaultPairingRules 기본 규칙 (±100, 30초 후 ±200, 60초 경고)
func DefaultPairingRules() PairingRules {
	return PairingRules{
		BaseTolerance:    100,
		WidenedTolerance: 200,
		WidenAfter:       30 * time.Second,
		LongWait:         60 * time.Second,
	}
}

// PairingResult 한 버킷에 대한 매칭 결과
type PairingResult struct {
	Pairs       [][2]models.QueueEntry
	Leftover    []models.QueueEntry
	LongWaiters []models.QueueEntry
}

// Tolerance 평균 대기 시간에 따른 허용 레이팅 차이
func (r PairingRules) Tolerance(avgWait time.Duration) int {
	if avgWait < r.WidenAfter {
		return r.BaseTolerance
	}
	return r.WidenedTolerance
}

// Compatible a와 b를 now 시점에 매칭할 수 있는지
func (r PairingRules) Compatible(a, b models.QueueEntry, now time.Time) bool {
	if a.Region != b.Region || a.Mode != b.Mode || a.PlayerID == b.PlayerID {
		return false
	}
	avgWait := (a.WaitTime(now) + b.WaitTime(now)) / 2
	diff := a.Rating - b.Rating
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.Tolerance(avgWait)
}

// PairCandidates 같은 (region, mode) 버킷의 후보를 joinedAt 순서로 짝짓는다.
// 가장 오래 기다린 항목부터, 뒤에 있는 첫 번째 호환 항목과 묶는다 (최적 매칭이 아닌 선착순)
func PairCandidates(candidates []models.QueueEntry, now time.Time, rules PairingRules) PairingResult {
	var result PairingResult
	if len(candidates) == 0 {
		return result
	}

	region, mode := candidates[0].Region, candidates[0].Mode
	matched := make([]bool, len(candidates))

	for i := range candidates {
		if matched[i] {
			continue
		}
		a := candidates[i]
		if a.Region != region || a.Mode != mode {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if matched[j] {
				continue
			}
			if rules.Compatible(a, candidates[j], now) {
				matched[i], matched[j] = true, true
				result.Pairs = append(result.Pairs, [2]models.QueueEntry{a, candidates[j]})
				break
			}
		}
	}

	for i, entry := range candidates {
		if matched[i] {
			continue
		}
		result.Leftover = append(result.Leftover, entry)
		if entry.WaitTime(now) > rules.LongWait {
			result.LongWaiters = append(result.LongWaiters, entry)
		}
	}
	return result
}
