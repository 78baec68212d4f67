package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/pipeline"
)

// handleError renders errors as {"error": "..."} with a status code that
// follows the loop's sentinel errors.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, pipeline.ErrNotStartable), errors.Is(err, pipeline.ErrBusy):
		code = fiber.StatusConflict
	case errors.Is(err, pipeline.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"state":  s.deps.Loop.Stats().State,
	})
}

// handleStatus returns what the display shows.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.deps.Status.Current())
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.deps.Loop.Stats())
}

// handleStart is the start control. A second press while loading or
// running is rejected with 409.
func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.deps.Loop.Start(); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"state": s.deps.Loop.Stats().State,
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.deps.Loop.Stop(); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": s.deps.Loop.Stats().State})
}

func (s *Server) handleReload(c *fiber.Ctx) error {
	if err := s.deps.Loop.Reload(); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"reloaded": true})
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.deps.Cameras.GetConfigJSON())
}

// handleUpdateCamera applies a partial camera config, e.g.
// {"preset": "720p", "framerate": 15}.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if len(params) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no settings given")
	}
	if err := s.deps.Cameras.UpdateConfig(params); err != nil {
		if errors.Is(err, pipeline.ErrBusy) || errors.Is(err, pipeline.ErrClosed) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.deps.Cameras.GetConfigJSON())
}

func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"presets": camera.PresetNames()})
}

func (s *Server) handleListBackends(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"backends": camera.Backends()})
}
