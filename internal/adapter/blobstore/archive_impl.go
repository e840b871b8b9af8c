// Package blobstore keeps a cold copy of raw callback bodies in Azure Blob Storage.
package blobstore

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

// Archive implements repository.RawArchive on a single blob container.
type Archive struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewArchive authenticates with the default Azure credential chain (managed
// identity, workload identity, CLI) and makes sure the container exists.
func NewArchive(ctx context.Context, accountName, containerName string, logger *zap.Logger) (*Archive, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	a := &Archive{client: client, containerName: containerName, logger: logger}
	if err := a.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			a.logger.Debug("archive container already exists", zap.String("container", a.containerName))
			return nil
		}
		return fmt.Errorf("failed to create container %s: %w", a.containerName, err)
	}
	a.logger.Info("created archive container", zap.String("container", a.containerName))
	return nil
}

// Store uploads data under name, overwriting any previous blob.
func (a *Archive) Store(ctx context.Context, name string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.containerName, name, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", name, err)
	}
	return nil
}
