package controller

import (
	"encoding/base64"
	"strings"

	"exam-proctor-be/internal/dto"
	"exam-proctor-be/internal/pkg/serverutils"
	"exam-proctor-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IProctorController interface {
	RegisterRoutes(r fiber.Router)
	StartSession(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
	SubmitFrame(ctx *fiber.Ctx) error
	SubmitAudio(ctx *fiber.Ctx) error
	RecordTabSwitch(ctx *fiber.Ctx) error
	GetSummary(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
}

type proctorController struct {
	service service.IProctoringService
}

func NewProctorController(service service.IProctoringService) IProctorController {
	return &proctorController{service: service}
}

func (c *proctorController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/proctor/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/sessions", c.StartSession)
	h.Delete("/sessions/:id", c.EndSession)
	h.Post("/sessions/:id/frames", c.SubmitFrame)
	h.Post("/sessions/:id/audio", c.SubmitAudio)
	h.Post("/sessions/:id/tab-switch", c.RecordTabSwitch)

	h.Get("/sessions", serverutils.RequireSupervisor, c.ListSessions)
	h.Get("/sessions/:id/summary", serverutils.RequireSupervisor, c.GetSummary)
}

func (c *proctorController) StartSession(ctx *fiber.Ctx) error {
	var req dto.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	caller := currentCaller(ctx)
	if req.StudentId == "" && !caller.Supervisor {
		req.StudentId = caller.UserId
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.StartSession(ctx.UserContext(), caller, &req)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Session started", res))
}

func (c *proctorController) EndSession(ctx *fiber.Ctx) error {
	res, err := c.service.EndSession(ctx.UserContext(), currentCaller(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session ended", res))
}

func (c *proctorController) SubmitFrame(ctx *fiber.Ctx) error {
	var req dto.SubmitFrameRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	frame, err := decodeFrame(req.Frame)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Frame is not valid base64")
	}

	res, err := c.service.SubmitObservation(ctx.UserContext(), currentCaller(ctx), dto.Observation{
		SessionId:  ctx.Params("id"),
		Frame:      frame,
		AudioLevel: req.AudioLevel,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Frame processed", res))
}

func (c *proctorController) SubmitAudio(ctx *fiber.Ctx) error {
	var req dto.SubmitAudioRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.AudioLevel == nil && len(req.Samples) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "audio_level or samples is required")
	}

	res, err := c.service.SubmitObservation(ctx.UserContext(), currentCaller(ctx), dto.Observation{
		SessionId:    ctx.Params("id"),
		AudioLevel:   req.AudioLevel,
		AudioSamples: req.Samples,
		SampleRate:   req.SampleRate,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Audio processed", res))
}

func (c *proctorController) RecordTabSwitch(ctx *fiber.Ctx) error {
	res, err := c.service.RecordTabSwitch(ctx.UserContext(), currentCaller(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Tab switch recorded", res))
}

func (c *proctorController) GetSummary(ctx *fiber.Ctx) error {
	res, err := c.service.GetSummary(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session summary", res))
}

func (c *proctorController) ListSessions(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Active sessions", c.service.ActiveSessions(ctx.UserContext())))
}

func currentCaller(ctx *fiber.Ctx) dto.Caller {
	id := serverutils.CurrentIdentity(ctx)
	return dto.Caller{UserId: id.UserID, Supervisor: id.IsSupervisor()}
}

// decodeFrame accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
func decodeFrame(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
