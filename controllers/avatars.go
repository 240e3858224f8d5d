package controllers

import (
	"math/rand"

	"github.com/imalive/server/models"
)

type avatarCategory struct {
	Name    string   `json:"name"`
	Avatars []string `json:"avatars"`
}

var avatarCategories = []avatarCategory{
	{Name: "动物", Avatars: []string{"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐧"}},
	{Name: "表情", Avatars: []string{"😀", "😎", "🤓", "🥳", "😇", "🤠", "🥸", "😺"}},
	{Name: "自然", Avatars: []string{"🌸", "🌻", "🌈", "⭐", "🌙", "🍀", "🌵", "🍄"}},
	{Name: "食物", Avatars: []string{"🍎", "🍉", "🍓", "🍩", "🍕", "🍔", "🍣", "🧁"}},
}

var presetAvatars = func() map[string]struct{} {
	set := map[string]struct{}{models.DefaultAvatar: {}}
	for _, c := range avatarCategories {
		for _, a := range c.Avatars {
			set[a] = struct{}{}
		}
	}
	return set
}()

func isPresetAvatar(a string) bool {
	_, ok := presetAvatars[a]
	return ok
}

func randomAvatar() string {
	c := avatarCategories[rand.Intn(len(avatarCategories))]
	return c.Avatars[rand.Intn(len(c.Avatars))]
}
