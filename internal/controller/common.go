package controller

import (
	"quiz_assessment_backend/internal/service"
	"quiz_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUser 未登录时已写入 401 响应
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return user, true
}

func requester(user *util.Claims) service.Requester {
	return service.Requester{UserID: user.UserID, Role: user.Role}
}

func paramID(ctx *gin.Context, name string) (uint, bool) {
	id, err := util.ParamUint(ctx, name)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return 0, false
	}
	return id, true
}
