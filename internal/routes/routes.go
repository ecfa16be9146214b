package routes

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	portal "github.com/countyworks/portal"
)

// identityKey is the fiber locals key the auth collaborator populates.
const identityKey = "identity"

// Identity extracts the authenticated user descriptor from the request
// context. Supplying it is the authentication collaborator's job; routes
// without one are rejected.
func identityFrom(c *fiber.Ctx) (portal.Identity, bool) {
	user, ok := c.Locals(identityKey).(portal.Identity)
	return user, ok
}

// RequirePrivilege is middleware gating a route on a single privilege.
func RequirePrivilege(svc *portal.Service, privilege string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := identityFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
		}
		if !svc.HasPrivilege(c.Context(), user, privilege) {
			return fiber.NewError(fiber.StatusForbidden, "permission denied")
		}
		return c.Next()
	}
}

// Setup mounts the control-plane HTTP surface.
func Setup(app *fiber.App, svc *portal.Service) {
	api := app.Group("/api/v1")

	// Dashboard configuration
	api.Get("/dashboard/:role", func(c *fiber.Ctx) error {
		layout, err := svc.ResolveDashboard(c.Context(), c.Params("role"))
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(layout)
	})

	api.Put("/dashboard/:role/:tab", RequirePrivilege(svc, "dashboard.configure"), func(c *fiber.Ctx) error {
		user, _ := identityFrom(c)
		var body struct {
			Components []string `json:"components"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := svc.SaveDashboardOverride(c.Context(), c.Params("role"), c.Params("tab"), body.Components, user.UserID); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Delete("/dashboard/:role/:tab", RequirePrivilege(svc, "dashboard.configure"), func(c *fiber.Ctx) error {
		user, _ := identityFrom(c)
		if err := svc.DeleteDashboardOverride(c.Context(), c.Params("role"), c.Params("tab"), user.UserID); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Scoped data access
	api.Get("/users/:id/scope", func(c *fiber.Ctx) error {
		userID, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		depts, err := svc.AccessibleDepartments(c.Context(), userID)
		if err != nil {
			return mapError(c, err)
		}
		wards, err := svc.AccessibleWards(c.Context(), userID)
		if err != nil {
			return mapError(c, err)
		}
		projects, err := svc.AccessibleProjects(c.Context(), userID)
		if err != nil {
			return mapError(c, err)
		}
		filters, err := svc.ActiveFilters(c.Context(), userID)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(fiber.Map{
			"departments": depts,
			"wards":       wards,
			"projects":    projects,
			"filters":     filters,
		})
	})

	api.Put("/users/:id/departments", RequirePrivilege(svc, "user.assign"), func(c *fiber.Ctx) error {
		user, _ := identityFrom(c)
		userID, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		var desired []portal.DepartmentScope
		if err := c.BodyParser(&desired); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := svc.AssignUserToDepartments(c.Context(), userID, desired, user.UserID); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Put("/users/:id/wards", RequirePrivilege(svc, "user.assign"), func(c *fiber.Ctx) error {
		user, _ := identityFrom(c)
		userID, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		var desired []portal.WardScope
		if err := c.BodyParser(&desired); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := svc.AssignUserToWards(c.Context(), userID, desired, user.UserID); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Put("/users/:id/projects", RequirePrivilege(svc, "user.assign"), func(c *fiber.Ctx) error {
		user, _ := identityFrom(c)
		userID, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		var desired []portal.ProjectScope
		if err := c.BodyParser(&desired); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := svc.AssignUserToProjects(c.Context(), userID, desired, user.UserID); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Moderation queue
	api.Get("/feedback", func(c *fiber.Ctx) error {
		page, err := svc.ListFeedback(c.Context(), portal.ListQuery{
			Page:   c.QueryInt("page", 1),
			Limit:  c.QueryInt("limit", 20),
			Status: c.Query("moderation_status"),
			Search: c.Query("search"),
		})
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(page)
	})

	api.Get("/feedback/stats", func(c *fiber.Ctx) error {
		counts, err := svc.ModerationStats(c.Context())
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(counts)
	})

	api.Get("/feedback/:id/history", func(c *fiber.Ctx) error {
		id, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		events, err := svc.FeedbackHistory(c.Context(), id)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(events)
	})

	api.Post("/feedback", func(c *fiber.Ctx) error {
		var fb portal.Feedback
		if err := c.BodyParser(&fb); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := svc.SubmitFeedback(c.Context(), &fb); err != nil {
			return mapError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fb)
	})

	moderationAction := func(apply func(c *fiber.Ctx, user portal.Identity, id uint, in portal.ModerationInput) (*portal.Feedback, error)) fiber.Handler {
		return func(c *fiber.Ctx) error {
			user, ok := identityFrom(c)
			if !ok {
				return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
			}
			id, err := paramUint(c, "id")
			if err != nil {
				return err
			}
			var in portal.ModerationInput
			if len(c.Body()) > 0 {
				if err := c.BodyParser(&in); err != nil {
					return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
				}
			}
			fb, err := apply(c, user, id, in)
			if err != nil {
				return mapError(c, err)
			}
			return c.JSON(fb)
		}
	}

	api.Post("/feedback/:id/approve", moderationAction(func(c *fiber.Ctx, user portal.Identity, id uint, in portal.ModerationInput) (*portal.Feedback, error) {
		return svc.ApproveFeedback(c.Context(), id, user, in)
	}))
	api.Post("/feedback/:id/reject", moderationAction(func(c *fiber.Ctx, user portal.Identity, id uint, in portal.ModerationInput) (*portal.Feedback, error) {
		return svc.RejectFeedback(c.Context(), id, user, in)
	}))
	api.Post("/feedback/:id/flag", moderationAction(func(c *fiber.Ctx, user portal.Identity, id uint, in portal.ModerationInput) (*portal.Feedback, error) {
		return svc.FlagFeedback(c.Context(), id, user, in)
	}))
	api.Post("/feedback/:id/reopen", moderationAction(func(c *fiber.Ctx, user portal.Identity, id uint, in portal.ModerationInput) (*portal.Feedback, error) {
		return svc.ReopenFeedback(c.Context(), id, user, in)
	}))

	api.Post("/feedback/bulk", func(c *fiber.Ctx) error {
		user, ok := identityFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
		}
		var body struct {
			Action  string                 `json:"action"`
			ItemIDs []uint                 `json:"item_ids"`
			Input   portal.ModerationInput `json:"input"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		result, err := svc.BulkModerationAction(c.Context(), user, body.Action, body.ItemIDs, body.Input)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(result)
	})

	// Content approval
	api.Get("/content", func(c *fiber.Ctx) error {
		items, err := svc.ListContentQueue(c.Context(), c.Query("kind"), c.Query("state"))
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(items)
	})

	contentAction := func(apply func(c *fiber.Ctx, user portal.Identity, id uint) (*portal.ContentItem, error)) fiber.Handler {
		return func(c *fiber.Ctx) error {
			user, ok := identityFrom(c)
			if !ok {
				return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
			}
			id, err := paramUint(c, "id")
			if err != nil {
				return err
			}
			item, err := apply(c, user, id)
			if err != nil {
				return mapError(c, err)
			}
			return c.JSON(item)
		}
	}

	api.Post("/content/:id/approve", contentAction(func(c *fiber.Ctx, user portal.Identity, id uint) (*portal.ContentItem, error) {
		return svc.ApproveContent(c.Context(), id, user)
	}))
	api.Post("/content/:id/revoke", contentAction(func(c *fiber.Ctx, user portal.Identity, id uint) (*portal.ContentItem, error) {
		return svc.RevokeContent(c.Context(), id, user)
	}))
	api.Post("/content/:id/reject", contentAction(func(c *fiber.Ctx, user portal.Identity, id uint) (*portal.ContentItem, error) {
		return svc.RejectContentRevision(c.Context(), id, user)
	}))

	api.Post("/content/:id/request-revision", func(c *fiber.Ctx) error {
		user, ok := identityFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
		}
		id, err := paramUint(c, "id")
		if err != nil {
			return err
		}
		var body struct {
			Notes string `json:"notes"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		item, err := svc.RequestContentRevision(c.Context(), id, user, body.Notes)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(item)
	})

	api.Post("/content/bulk", func(c *fiber.Ctx) error {
		user, ok := identityFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
		}
		var body struct {
			Action  string `json:"action"`
			ItemIDs []uint `json:"item_ids"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		result, err := svc.BulkContentAction(c.Context(), user, body.Action, body.ItemIDs)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(result)
	})

	// Photo approval
	api.Post("/photos/:id/approve", func(c *fiber.Ctx) error {
		return photoAction(c, svc, true)
	})
	api.Post("/photos/:id/revoke", func(c *fiber.Ctx) error {
		return photoAction(c, svc, false)
	})
}

func photoAction(c *fiber.Ctx, svc *portal.Service, approve bool) error {
	user, ok := identityFrom(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "identity not found in context")
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var photo *portal.ProjectPhoto
	if approve {
		photo, err = svc.ApprovePhoto(c.Context(), id, user)
	} else {
		photo, err = svc.RevokePhoto(c.Context(), id, user)
	}
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(photo)
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(n), nil
}

// mapError translates the library's error taxonomy to HTTP statuses.
// Authorization failures stay opaque.
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, portal.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, portal.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied"})
	case errors.Is(err, portal.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, portal.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
