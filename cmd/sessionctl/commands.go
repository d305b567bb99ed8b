package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"chat-client/internal/authapi"
	"chat-client/internal/domain"
	"chat-client/internal/service"
)

type commandLine struct {
	mgr    *service.SessionManager
	events *service.Broadcaster
	reader *bufio.Reader
}

func (c *commandLine) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "login":
		return c.login(ctx)
	case "register":
		return c.register(ctx)
	case "logout":
		c.mgr.Logout(ctx)
		fmt.Println("Sesion cerrada.")
		return nil
	case "whoami":
		return c.whoami(ctx)
	case "verify":
		if err := c.mgr.VerifyToken(ctx); err != nil {
			return err
		}
		fmt.Println("Token valido.")
		return nil
	case "profile":
		return c.profile(ctx, args)
	case "password":
		return c.password(ctx)
	case "remove-image":
		if _, err := c.mgr.RemoveProfileImage(ctx); err != nil {
			return err
		}
		fmt.Println("Imagen de perfil eliminada.")
		return nil
	case "health":
		return c.health(ctx)
	case "watch":
		return c.watch(ctx, args)
	default:
		return fmt.Errorf("comando desconocido %q\n\n%s", name, usage)
	}
}

func (c *commandLine) login(ctx context.Context) error {
	email := c.prompt("Email: ")
	password := c.prompt("Contraseña: ")
	s, err := c.mgr.Login(ctx, authapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("Bienvenido, %s.\n", s.Name)
	return nil
}

func (c *commandLine) register(ctx context.Context) error {
	name := c.prompt("Nombre: ")
	email := c.prompt("Email: ")
	password := c.prompt("Contraseña: ")
	s, err := c.mgr.Register(ctx, authapi.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("Cuenta creada para %s.\n", s.Email)
	return nil
}

func (c *commandLine) whoami(ctx context.Context) error {
	s, err := c.mgr.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Println("Sin sesion.")
		return nil
	}
	printSession(s, c.mgr.ProfileImageURL(s.ProfileImage))
	return nil
}

func (c *commandLine) profile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	name := fs.String("name", "", "nuevo nombre")
	email := fs.String("email", "", "nuevo email")
	image := fs.String("image", "", "referencia de la nueva imagen")
	if err := fs.Parse(args); err != nil {
		return err
	}

	update := authapi.ProfileUpdate{Name: *name, Email: *email}
	if *image != "" {
		update.ProfileImage = image
	}
	if update.Name == "" && update.Email == "" && update.ProfileImage == nil {
		return fmt.Errorf("indica al menos -name, -email o -image")
	}

	s, err := c.mgr.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	fmt.Println("Perfil actualizado.")
	printSession(s, c.mgr.ProfileImageURL(s.ProfileImage))
	return nil
}

func (c *commandLine) password(ctx context.Context) error {
	current := c.prompt("Contraseña actual: ")
	next := c.prompt("Contraseña nueva: ")
	if next == "" {
		return fmt.Errorf("la contraseña nueva no puede estar vacia")
	}
	if err := c.mgr.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Println("Contraseña actualizada.")
	return nil
}

func (c *commandLine) health(ctx context.Context) error {
	ok, err := c.mgr.CheckServerConnection(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("El servidor respondio pero no esta listo.")
		return nil
	}
	fmt.Println("Servidor disponible.")
	return nil
}

// watch verifica la sesion cada intervalo hasta que el contexto termina,
// imprimiendo los cambios de estado que publica el gestor.
func (c *commandLine) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	every := fs.Duration("every", time.Minute, "intervalo entre verificaciones")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events, cancel := c.events.Subscribe(8)
	defer cancel()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	check := func() {
		if err := c.mgr.VerifyToken(ctx); err != nil {
			fmt.Printf("[%s] %v\n", time.Now().Format(time.TimeOnly), err)
		}
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			fmt.Printf("[%s] evento: %s\n", time.Now().Format(time.TimeOnly), ev)
		case <-ticker.C:
			check()
		}
	}
}

func (c *commandLine) prompt(label string) string {
	fmt.Print(label)
	line, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func printSession(s *domain.Session, imageURL string) {
	fmt.Printf("Usuario:   %s (%s)\n", s.Name, s.ID)
	fmt.Printf("Email:     %s\n", s.Email)
	if imageURL != "" {
		fmt.Printf("Imagen:    %s\n", imageURL)
	}
	fmt.Printf("Sesion:    %s\n", s.SessionID)
	fmt.Printf("Actividad: %s\n", s.LastActivity.Local().Format(time.RFC3339))
	if exp, ok := authapi.TokenExpiry(s.Token); ok {
		fmt.Printf("Token expira: %s\n", exp.Local().Format(time.RFC3339))
	}
}
