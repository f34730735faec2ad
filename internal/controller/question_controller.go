package controller

import (
	"crew_assessment_backend/internal/service"
	"crew_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// @Summary List question bank
// @Description Filters the bank by division and module; grading data is never serialized
// @Tags admin
// @Produce json
// @Param division query string false "hotel, marine or casino"
// @Param module query string false "Module type"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /admin/questions [get]
func (c *QuestionController) List(ctx *gin.Context) {
	questions, err := c.QuestionService.List(ctx.Query("division"), ctx.Query("module"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"questions": questions,
		"total":     len(questions),
	})
}
