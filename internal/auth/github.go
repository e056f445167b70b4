package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gittalk/gittalk/internal/database"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserEndpoint = "https://api.github.com/user"

type githubProfile struct {
	Id        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarUrl string `json:"avatar_url"`
}

// GitHubAuthenticator runs the OAuth code exchange and maps a GitHub profile
// onto a local account, creating it on first login and refreshing the avatar
// on subsequent ones.
type GitHubAuthenticator struct {
	log   *log.Logger
	db    database.GitTalkRepository
	oauth *oauth2.Config
}

func NewGitHubAuthenticator(logger *log.Logger, db database.GitTalkRepository, clientId, clientSecret, redirectURL string) *GitHubAuthenticator {
	return &GitHubAuthenticator{
		log: logger,
		db:  db,
		oauth: &oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
	}
}

func (g *GitHubAuthenticator) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades the OAuth code for a GitHub token, fetches the profile and
// upserts the local account.
func (g *GitHubAuthenticator) Exchange(ctx context.Context, code string) (database.User, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return database.User{}, fmt.Errorf("exchange code: %w", err)
	}

	profile, err := g.fetchProfile(ctx, token)
	if err != nil {
		return database.User{}, fmt.Errorf("fetch profile: %w", err)
	}

	return g.upsertUser(profile)
}

func (g *GitHubAuthenticator) fetchProfile(ctx context.Context, token *oauth2.Token) (githubProfile, error) {
	client := g.oauth.Client(ctx, token)

	resp, err := client.Get(githubUserEndpoint)
	if err != nil {
		return githubProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return githubProfile{}, fmt.Errorf("github user endpoint returned %d", resp.StatusCode)
	}

	var profile githubProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return githubProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if profile.Login == "" {
		return githubProfile{}, fmt.Errorf("github profile missing login")
	}

	return profile, nil
}

func (g *GitHubAuthenticator) upsertUser(profile githubProfile) (database.User, error) {
	githubId := strconv.FormatInt(profile.Id, 10)

	user, err := g.db.GetAccountByGithubId(githubId)
	if err == nil {
		if user.AvatarUrl == profile.AvatarUrl {
			return user, nil
		}
		return g.db.UpdateAvatar(user.Id, profile.AvatarUrl)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.User{}, fmt.Errorf("get account: %w", err)
	}

	g.log.Printf("creating account for github user %q", profile.Login)
	return g.db.CreateAccount(database.CreateAccountParams{
		GithubId:  githubId,
		Login:     profile.Login,
		AvatarUrl: profile.AvatarUrl,
	})
}
