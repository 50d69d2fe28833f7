package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-offline/internal/strategy"
)

// RegisterStrategyRoutes 暴露 /-/strategies，列出全部已注册的 profile 及其步骤。
func RegisterStrategyRoutes(app *fiber.App) {
	if app == nil {
		return
	}
	app.Get("/-/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": encodeProfiles(strategy.List())})
	})
}

type profilePayload struct {
	Key          string   `json:"key"`
	Description  string   `json:"description"`
	Steps        []string `json:"steps"`
	Flow         string   `json:"flow"`
	WriteThrough bool     `json:"write_through"`
}

func encodeProfiles(profiles []strategy.Profile) []profilePayload {
	result := make([]profilePayload, 0, len(profiles))
	for _, profile := range profiles {
		steps := make([]string, len(profile.Steps))
		for i, step := range profile.Steps {
			steps[i] = string(step)
		}
		result = append(result, profilePayload{
			Key:          profile.Key,
			Description:  profile.Description,
			Steps:        steps,
			Flow:         profile.String(),
			WriteThrough: profile.WriteThrough,
		})
	}
	return result
}
