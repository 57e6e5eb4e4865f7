package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var moods = []string{
	"Chill", "Hyped", "Cosmic", "Lucky", "Mellow",
	"Neon", "Groovy", "Sunny", "Fuzzy", "Electric",
	"Dreamy", "Spicy", "Velvet", "Lofi", "Turbo",
}

var creatures = []string{
	"Otter", "Panda", "Koala", "Gecko", "Moth",
	"Llama", "Axolotl", "Capy", "Narwhal", "Quokka",
	"Sloth", "Puffin", "Lemur", "Yak", "Bison",
}

func pick(n int) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// GenerateNickname creates a random nickname in the format "Mood_Creature_XXXX"
func GenerateNickname() (string, error) {
	moodIdx, err := pick(len(moods))
	if err != nil {
		return "", fmt.Errorf("failed to pick mood: %w", err)
	}
	creatureIdx, err := pick(len(creatures))
	if err != nil {
		return "", fmt.Errorf("failed to pick creature: %w", err)
	}
	suffix, err := pick(10000)
	if err != nil {
		return "", fmt.Errorf("failed to generate suffix: %w", err)
	}

	return fmt.Sprintf("%s_%s_%04d", moods[moodIdx], creatures[creatureIdx], suffix), nil
}
