package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/service"
)

// --- Auth ---

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var in service.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	sess, err := s.services.Auth.Register(c.UserContext(), in)
	if err != nil {
		return s.fail(c, err)
	}
	s.setAuthCookie(c, sess.Token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"token":   sess.Token,
		"user":    sess.User,
		"empresa": sess.Empresa,
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	sess, err := s.services.Auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	s.setAuthCookie(c, sess.Token)
	return c.JSON(fiber.Map{
		"success": true,
		"token":   sess.Token,
		"user":    sess.User,
		"empresa": sess.Empresa,
	})
}

func (s *Server) setAuthCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "auth-token",
		Value:    token,
		HTTPOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: "Lax",
		MaxAge:   7 * 24 * 60 * 60,
	})
}

func (s *Server) handleGetMe(c *fiber.Ctx) error {
	user, err := s.services.Auth.GetUser(c.UserContext(), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	claims, _ := c.Locals("claims").(*service.JWTClaims)
	resp := fiber.Map{"success": true, "user": user}
	if claims != nil && claims.EmpresaID != uuid.Nil {
		resp["empresa_id"] = claims.EmpresaID
		resp["role"] = claims.Role
	}
	return c.JSON(resp)
}

func (s *Server) handleGetMyEmpresas(c *fiber.Ctx) error {
	empresas, err := s.services.Auth.ListEmpresas(c.UserContext(), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "empresas": empresas})
}

func (s *Server) handleSwitchEmpresa(c *fiber.Ctx) error {
	var req struct {
		EmpresaID uuid.UUID `json:"empresa_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.EmpresaID == uuid.Nil {
		return badRequest(c, "empresa_id is required")
	}
	sess, err := s.services.Auth.SwitchEmpresa(c.UserContext(), userID(c), req.EmpresaID)
	if err != nil {
		return s.fail(c, err)
	}
	s.setAuthCookie(c, sess.Token)
	return c.JSON(fiber.Map{
		"success": true,
		"token":   sess.Token,
		"empresa": sess.Empresa,
	})
}

// --- Empresa ---

func (s *Server) handleGetEmpresa(c *fiber.Ctx) error {
	e, err := s.services.Empresa.Get(c.UserContext(), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "empresa": e})
}

func (s *Server) handleUpdateEmpresa(c *fiber.Ctx) error {
	var in service.UpdateEmpresaInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	e, err := s.services.Empresa.Update(c.UserContext(), userID(c), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "empresa": e})
}

func (s *Server) handleGetBookingLink(c *fiber.Ctx) error {
	link, err := s.services.Empresa.BookingInfo(c.UserContext(), userID(c), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "booking_url": link})
}

func (s *Server) handleGetBookingQR(c *fiber.Ctx) error {
	png, err := s.services.Empresa.BookingQR(c.UserContext(), userID(c), empresaID(c), c.QueryInt("size", 256))
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

func (s *Server) handleRotateBookingToken(c *fiber.Ctx) error {
	link, err := s.services.Empresa.RotateBookingToken(c.UserContext(), userID(c), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "booking_url": link})
}

// --- Team ---

func (s *Server) handleGetMembers(c *fiber.Ctx) error {
	members, err := s.services.Empresa.ListMembers(c.UserContext(), userID(c), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "members": members})
}

func (s *Server) handleChangeMemberRole(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	m, err := s.services.Empresa.ChangeRole(c.UserContext(), userID(c), empresaID(c), id, req.Role)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "member": m})
}

func (s *Server) handleRemoveMember(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Empresa.RemoveMember(c.UserContext(), userID(c), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Invitations ---

func (s *Server) handleGetInvitations(c *fiber.Ctx) error {
	invitations, err := s.services.Invitation.ListPending(c.UserContext(), userID(c), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "invitations": invitations})
}

func (s *Server) handleRevokeInvitation(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Invitation.Revoke(c.UserContext(), userID(c), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleResendInvitation(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	result, err := s.services.Invitation.Resend(c.UserContext(), userID(c), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	resp := fiber.Map{"success": true, "invitation": result.Invitation, "emailSent": result.EmailSent}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	return c.JSON(resp)
}

func (s *Server) handleAcceptInvitation(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return badRequest(c, "token is required")
	}
	inv, err := s.services.Invitation.Accept(c.UserContext(), userID(c), req.Token)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "invitation": inv})
}
