package service

import "math"

const DefaultKFactor = 32

// RatingResult 한 경기의 레이팅 정산 결과
type RatingResult struct {
	WinnerRatingAfter int
	LoserRatingAfter  int
	// RatingDelta 승자 변동폭 (매치 결과에 기록되는 값)
	RatingDelta int
	// LoserDelta 패자 변동폭 (음수). 반올림이 양쪽에 따로 적용되어 |LoserDelta|는 RatingDelta와 1 차이 날 수 있다
	LoserDelta int
}

// ELOService ELO 레이팅 계산 서비스
type ELOService struct {
	kFactor float64
}

// NewELOService K=32 ELO 서비스 생성
func NewELOService() *ELOService {
	return NewELOServiceWithK(DefaultKFactor)
}

// NewELOServiceWithK K-factor 지정
func NewELOServiceWithK(k float64) *ELOService {
	if k <= 0 {
		k = DefaultKFactor
	}
	return &ELOService{kFactor: k}
}

// KFactor 현재 K-factor
func (s *ELOService) KFactor() float64 {
	return s.kFactor
}

// CalculateELO 승자/패자의 현재 레이팅으로 새 레이팅 계산
// 기대 승률은 양쪽을 각각 계산한다 (수학적으로는 합이 1)
func (s *ELOService) CalculateELO(winnerRating, loserRating int) RatingResult {
	expectedWinner := s.expectedScore(float64(winnerRating), float64(loserRating))
	expectedLoser := s.expectedScore(float64(loserRating), float64(winnerRating))

	winnerChange := int(math.Round(s.kFactor * (1 - expectedWinner)))
	loserChange := int(math.Round(s.kFactor * (0 - expectedLoser)))

	return RatingResult{
		WinnerRatingAfter: winnerRating + winnerChange,
		LoserRatingAfter:  loserRating + loserChange,
		RatingDelta:       winnerChange,
		LoserDelta:        loserChange,
	}
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
