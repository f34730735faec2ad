package controller

import (
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/service"
	"crew_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
	IntegrityService  *service.IntegrityService
}

func NewAssessmentController(assessmentService *service.AssessmentService, integrityService *service.IntegrityService) *AssessmentController {
	return &AssessmentController{
		AssessmentService: assessmentService,
		IntegrityService:  integrityService,
	}
}

type createAssessmentRequest struct {
	CandidateID uint   `json:"candidateId" binding:"required"`
	Division    string `json:"division" binding:"required"`
}

// @Summary Create assessment session
// @Description Opens a session for a candidate and returns the session token
// @Tags assessment
// @Accept json
// @Produce json
// @Param request body createAssessmentRequest true "Candidate and division"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /assessments [post]
func (c *AssessmentController) Create(ctx *gin.Context) {
	var req createAssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "candidateId and division are required")
		return
	}

	result, err := c.AssessmentService.Create(req.CandidateID, req.Division)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// @Summary Start assessment
// @Description Freezes the question set and deadline and begins the timed window
// @Tags assessment
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/start [post]
func (c *AssessmentController) Start(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	result, err := c.AssessmentService.Start(ctx.Request.Context(), id, ctx.ClientIP(), ctx.Request.UserAgent())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

type submitResponseRequest struct {
	QuestionID     uint   `json:"questionId" binding:"required"`
	Answer         string `json:"answer"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// @Summary Submit written answer
// @Description Grades one answer and returns immediate feedback
// @Tags assessment
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param request body submitResponseRequest true "Answer payload"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 410 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/responses [post]
func (c *AssessmentController) SubmitResponse(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	var req submitResponseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "questionId is required")
		return
	}

	result, err := c.AssessmentService.SubmitResponse(id, req.QuestionID, req.Answer, req.ElapsedSeconds)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary Submit speaking response
// @Description Uploads a recording, runs speech analysis and grades by keyword coverage
// @Tags assessment
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Assessment ID"
// @Param questionId formData int true "Question ID"
// @Param audio formData file true "Recording"
// @Param elapsedSeconds formData int false "Seconds spent on the question"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 410 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/responses/speaking [post]
func (c *AssessmentController) SubmitSpeakingResponse(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	questionID := util.MustParseUint(ctx.PostForm("questionId"))
	if questionID == 0 {
		util.BadRequest(ctx, "questionId is required")
		return
	}

	file, err := ctx.FormFile("audio")
	if err != nil {
		util.BadRequest(ctx, "audio file is required")
		return
	}
	elapsed := int(util.MustParseUint(ctx.PostForm("elapsedSeconds")))

	result, err := c.AssessmentService.SubmitSpeakingResponse(ctx.Request.Context(), id, questionID, file, elapsed)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary Complete assessment
// @Description Freezes the aggregate result and closes the session
// @Tags assessment
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 410 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/complete [post]
func (c *AssessmentController) Complete(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	result, err := c.AssessmentService.Complete(id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary Session status
// @Description Current state, remaining time and progress; expires overdue sessions
// @Tags assessment
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/status [get]
func (c *AssessmentController) GetStatus(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	result, err := c.AssessmentService.GetStatus(id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

type integrityEventRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Detail string `json:"detail"`
}

// @Summary Report integrity event
// @Description Records a client-observed signal such as a tab switch
// @Tags assessment
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param request body integrityEventRequest true "Event"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Security SessionToken
// @Router /assessments/{id}/integrity/events [post]
func (c *AssessmentController) ReportIntegrityEvent(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	var req integrityEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "kind is required")
		return
	}

	kind, err := model.ParseReportableEventKind(req.Kind)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	riskScore, err := c.IntegrityService.RecordEvent(id, kind, req.Detail)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"riskScore": riskScore,
		"riskBand":  service.RiskBandFor(riskScore),
	})
}

// @Summary List assessments
// @Description Pages assessments for review, newest first
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status"
// @Param division query string false "Filter by division"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /admin/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	limit := int(util.MustParseUint(ctx.DefaultQuery("limit", "20")))
	offset := int(util.MustParseUint(ctx.DefaultQuery("offset", "0")))

	assessments, total, err := c.AssessmentService.List(ctx.Query("status"), ctx.Query("division"), limit, offset)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"assessments": assessments,
		"total":       total,
	})
}

// @Summary Assessment detail
// @Description Full response list and integrity log for one assessment
// @Tags admin
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /admin/assessments/{id} [get]
func (c *AssessmentController) GetDetail(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	detail, err := c.AssessmentService.GetDetail(id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

type flagRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary Flag assessment for review
// @Description Marks an assessment for manual review, independent of risk score
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param request body flagRequest true "Reason"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /admin/assessments/{id}/flag [post]
func (c *AssessmentController) Flag(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	var req flagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "reason is required")
		return
	}

	if err := c.IntegrityService.FlagForReview(id, req.Reason); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"flagged": true})
}
