package utils

import "github.com/gofiber/fiber/v2"

func JSON(c *fiber.Ctx, status int, payload fiber.Map) error {
	return c.Status(status).JSON(payload)
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
