package lobby

import "math/rand"

// PlayCoinToss flips a coin between the two choosers and fills in the outcome.
func PlayCoinToss(rng *rand.Rand, headsChosenBy, tailsChosenBy string) CoinToss {
	toss := CoinToss{
		HeadsChosenBy: headsChosenBy,
		TailsChosenBy: tailsChosenBy,
		Result:        Heads,
		Winner:        headsChosenBy,
	}
	if rng.Intn(2) == 1 {
		toss.Result = Tails
		toss.Winner = tailsChosenBy
	}
	return toss
}

// RoundWinner resolves a two-player rock-paper-scissors round. It returns the winning
// user id, or "" for a drawn round (same hand, or anything other than two choices).
func RoundWinner(choices []RPSChoice) string {
	if len(choices) != 2 {
		return ""
	}
	a, b := choices[0], choices[1]
	switch {
	case a.Hand == b.Hand:
		return ""
	case beats(a.Hand, b.Hand):
		return a.UserID
	default:
		return b.UserID
	}
}

// MatchWinner returns the user with the most round wins, or "" if the match is still
// level. Drawn rounds count for neither player; callers replay them.
func MatchWinner(rounds []RPSRound) string {
	wins := map[string]int{}
	for _, round := range rounds {
		if round.Winner != "" {
			wins[round.Winner]++
		}
	}
	var leader string
	best := 0
	tied := false
	for userID, n := range wins {
		switch {
		case n > best:
			leader, best, tied = userID, n, false
		case n == best:
			tied = true
		}
	}
	if tied || best == 0 {
		return ""
	}
	return leader
}

func beats(a, b RPSHand) bool {
	return (a == Rock && b == Scissors) ||
		(a == Paper && b == Rock) ||
		(a == Scissors && b == Paper)
}
