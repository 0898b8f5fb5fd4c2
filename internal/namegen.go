package internal

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
)

// roomNameAlphabet 房間名稱字元集（大寫字母 + 數字）
const roomNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultRoomNameLength 預設房間名稱長度
const DefaultRoomNameLength = 6

// NameGenerator 房間名稱產生器
//
// 36^6 ≈ 21 億種組合，同時存在的房間數遠小於此，
// 碰撞機率可接受（生日問題），由 Registry 負責碰撞重試。
type NameGenerator struct {
	length int
	source io.Reader
}

// NewNameGenerator 創建名稱產生器
func NewNameGenerator(length int) *NameGenerator {
	if length <= 0 {
		length = DefaultRoomNameLength
	}
	return &NameGenerator{length: length, source: rand.Reader}
}

// NewNameGeneratorWithSource 以指定隨機來源創建（測試用）
func NewNameGeneratorWithSource(length int, source io.Reader) *NameGenerator {
	g := NewNameGenerator(length)
	g.source = source
	return g
}

// Generate 產生一個房間名稱
//
// 使用拒絕採樣：byte 值 >= 252 (36*7) 時丟棄，避免取模偏差。
func (g *NameGenerator) Generate() string {
	const limit = 256 - 256%len(roomNameAlphabet)

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			// 隨機來源失敗時改用 math/rand，每次結果仍不同，Registry 的碰撞重試才會結束
			for len(out) < g.length {
				out = append(out, roomNameAlphabet[mrand.IntN(len(roomNameAlphabet))])
			}
			break
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, roomNameAlphabet[int(b)%len(roomNameAlphabet)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out)
}
