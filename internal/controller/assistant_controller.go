package controller

import (
	"campus-assistant-be/internal/dto"
	"campus-assistant-be/internal/pkg/serverutils"
	"campus-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAssistantController interface {
	RegisterRoutes(r fiber.Router)
	Ask(ctx *fiber.Ctx) error
	ListModels(ctx *fiber.Ctx) error
	SetDefaultModel(ctx *fiber.Ctx) error
	ClearSession(ctx *fiber.Ctx) error
	GetUsage(ctx *fiber.Ctx) error
	Test(ctx *fiber.Ctx) error
}

type assistantController struct {
	service service.IAssistantService
}

func NewAssistantController(service service.IAssistantService) IAssistantController {
	return &assistantController{service: service}
}

func (c *assistantController) RegisterRoutes(r fiber.Router) {
	r.Post("/ask", c.Ask)
	r.Post("/analyze", c.Ask) // browser extension alias
	r.Get("/models", c.ListModels)
	r.Put("/models/default", c.SetDefaultModel)
	r.Post("/session/clear", c.ClearSession)
	r.Get("/usage", c.GetUsage)
	r.Get("/test", c.Test)
}

func (c *assistantController) Ask(ctx *fiber.Ctx) error {
	var req dto.AskRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "無效的請求體")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Ask(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("success", res))
}

func (c *assistantController) ListModels(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Available models", c.service.ListModels(ctx.UserContext())))
}

func (c *assistantController) SetDefaultModel(ctx *fiber.Ctx) error {
	var req dto.SetDefaultModelRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "無效的請求體")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SetDefaultModel(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Default model updated", res))
}

func (c *assistantController) ClearSession(ctx *fiber.Ctx) error {
	var req dto.ClearSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "無效的請求體")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ClearSession(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session cleared", res))
}

func (c *assistantController) GetUsage(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Usage", c.service.Usage(ctx.UserContext())))
}

func (c *assistantController) Test(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse[any]("校務系統 AI 助手後端正在運行", nil))
}
