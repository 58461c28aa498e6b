package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sberz/sandbox-pages/internal/token"
	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// MinTokenExpiration is the shortest lifetime the API server accepts for a
// TokenRequest.
const MinTokenExpiration = token.MinServiceAccountExpiration

var ErrEmptyToken = errors.New("token request returned an empty token")

// GetClient return a configured Kubernetes client. It uses the kube config file set in the KUBECONFIG environment variable if it is set, otherwise it uses in-cluster configuration.
func GetClient() (*kubernetes.Clientset, error) {
	kubeconfig := os.Getenv("KUBECONFIG")
	var config *rest.Config
	var err error

	if kubeconfig != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return clientset, nil
}

// ServiceAccountTokenSource mints a fresh ServiceAccount JWT for every call
// through the TokenRequest subresource. Wrap it in a token.Cache to avoid a
// request per build service call.
type ServiceAccountTokenSource struct {
	client     kubernetes.Interface
	namespace  string
	name       string
	audiences  []string
	expiration time.Duration
}

func NewServiceAccountTokenSource(client kubernetes.Interface, namespace, name string, audiences []string, expiration time.Duration) *ServiceAccountTokenSource {
	if expiration < MinTokenExpiration {
		expiration = MinTokenExpiration
	}

	return &ServiceAccountTokenSource{
		client:     client,
		namespace:  namespace,
		name:       name,
		audiences:  audiences,
		expiration: expiration,
	}
}

func (s *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	seconds := int64(s.expiration.Seconds())
	req := &authenticationv1.TokenRequest{
		Spec: authenticationv1.TokenRequestSpec{
			Audiences:         s.audiences,
			ExpirationSeconds: &seconds,
		},
	}

	slog.DebugContext(ctx, "Requesting service account token", "namespace", s.namespace, "service_account", s.name)

	res, err := s.client.CoreV1().ServiceAccounts(s.namespace).CreateToken(ctx, s.name, req, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create token for service account %s/%s: %w", s.namespace, s.name, err)
	}
	if res.Status.Token == "" {
		return "", ErrEmptyToken
	}

	return res.Status.Token, nil
}
