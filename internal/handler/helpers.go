package handler

import (
	"net/http"

	"opsboard/internal/middleware"
	"opsboard/internal/policy"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail writes the error response for a service error.
func fail(c *gin.Context, err error) {
	res := response.FromError(err)
	c.JSON(res.StatusCode, res)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
}

func actorOf(c *gin.Context) policy.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// pathID parses a uuid path parameter, answering 400 itself when it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+name+": "+c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}
