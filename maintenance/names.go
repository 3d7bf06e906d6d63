// maintenance/names.go
package maintenance

import (
	"fmt"
	"math/rand"
)

// 候选游戏 ID 的形态："Adjective Adjective Noun NNN"

var adjectives = []string{
	"Swift", "Brave", "Clever", "Mighty", "Nimble",
	"Fierce", "Wise", "Bold", "Loyal", "Gentle",
}

var nouns = []string{
	"Lion", "Eagle", "Wolf", "Tiger", "Dragon",
	"Phoenix", "Bear", "Shark", "Falcon", "Panther",
}

// GenerateGameName 生成一个人类可读的候选游戏 ID。
// 两个形容词可能重复，不影响唯一性（由数字后缀与池去重兜底）。
func GenerateGameName() string {
	return fmt.Sprintf("%s %s %s %d",
		adjectives[rand.Intn(len(adjectives))],
		adjectives[rand.Intn(len(adjectives))],
		nouns[rand.Intn(len(nouns))],
		100+rand.Intn(900),
	)
}
