package server

import "math/rand/v2"

// 访客昵称词库
var (
	adjectives = []string{
		"博学的", "机敏的", "好奇的", "沉着的", "敏捷的",
		"睿智的", "专注的", "果断的", "细心的", "灵光的",
	}

	nouns = []string{
		"猫头鹰", "书虫", "侦探", "学者", "探险家",
		"天文迷", "百科", "棋手", "行者", "答题王",
	}
)

// GenerateNickname 生成随机访客昵称
func GenerateNickname() string {
	return adjectives[rand.IntN(len(adjectives))] + nouns[rand.IntN(len(nouns))]
}
