package rest

import (
	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Post struct {
	Service domainPost.IPostUsecase
	Drafts  domainGenerator.IDraftUsecase
}

func InitRestPost(app fiber.Router, service domainPost.IPostUsecase, drafts domainGenerator.IDraftUsecase) Post {
	handler := Post{Service: service, Drafts: drafts}
	app.Get("/posts", handler.List)
	app.Get("/posts/:id", handler.Get)
	app.Post("/posts/:id/manage", handler.Manage)
	app.Post("/generate", handler.Generate)
	return handler
}

func (handler *Post) List(c *fiber.Ctx) error {
	var request domainPost.ListRequest
	err := c.QueryParser(&request)
	if err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	posts, err := handler.Service.List(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success get posts",
		Results: posts,
	})
}

func (handler *Post) Get(c *fiber.Ctx) error {
	post, err := handler.Service.Get(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success get post",
		Results: post,
	})
}

func (handler *Post) Manage(c *fiber.Ctx) error {
	var request domainPost.ManageRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
		}
	}
	if request.Action == "" {
		request.Action = domainPost.ManageAction(c.Query("action"))
	}
	request.ID = c.Params("id")

	response, err := handler.Service.Manage(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: response.Message,
		Results: response.Post,
	})
}

func (handler *Post) Generate(c *fiber.Ctx) error {
	var request domainGenerator.GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
		}
	}

	response, err := handler.Drafts.GenerateAndSchedule(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Drafts generated",
		Results: response,
	})
}
